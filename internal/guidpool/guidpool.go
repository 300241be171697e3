// Package guidpool implements the GUID pool file described in spec §6's
// "Persisted state layout": a newline-delimited mapping of generator
// output path to a stable UUID, so repeated loads assign the same
// identifier to the same path instead of a fresh random one each time.
// Grounded on the corpus's general pattern of a small persisted
// lookaside file guarding a stable identity (compare
// reference/boltcache's persisted cache entries); google/uuid supplies
// the identifiers themselves.
package guidpool

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Pool is a path -> UUID mapping, loaded from and flushed back to a
// newline-delimited text file.
type Pool struct {
	mu      sync.Mutex
	path    string
	byPath  map[string]uuid.UUID
	dirty   bool
}

// Open loads path if it exists, or starts an empty pool if it doesn't.
func Open(path string) (*Pool, error) {
	p := &Pool{path: path, byPath: map[string]uuid.UUID{}}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, errors.Wrapf(err, "failed to open guid pool %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, '\t')
		if idx < 0 {
			continue
		}
		pathField, idField := line[:idx], line[idx+1:]
		id, err := uuid.Parse(idField)
		if err != nil {
			continue
		}
		p.byPath[pathField] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read guid pool %s", path)
	}
	return p, nil
}

// IDFor returns the stable UUID for generatorPath, minting and recording
// a new one on first use.
func (p *Pool) IDFor(generatorPath string) uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.byPath[generatorPath]; ok {
		return id
	}
	id := uuid.New()
	p.byPath[generatorPath] = id
	p.dirty = true
	return id
}

// Flush writes the pool back to disk if it has changed since Open/last
// Flush, in sorted path order for a stable diff across runs.
func (p *Pool) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil
	}

	paths := make([]string, 0, len(p.byPath))
	for path := range p.byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	f, err := os.Create(p.path)
	if err != nil {
		return errors.Wrapf(err, "failed to write guid pool %s", p.path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, path := range paths {
		fmt.Fprintf(w, "%s\t%s\n", path, p.byPath[path])
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush guid pool %s", p.path)
	}
	p.dirty = false
	return nil
}
