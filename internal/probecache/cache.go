// Package probecache implements the cross-run cache for the Probes
// Resolver (spec §4.D) and the Module Provider Loader (spec §4.E). Both
// need the same shape: a persistent store keyed by a composite identity,
// holding a small record that's reused if it still matches, otherwise
// regenerated by actually running something side-effecting.
//
// Grounded on reference/boltcache/source_cache_bolt.go: one *bolt.DB
// per cache directory, top-level buckets keyed by a caller-chosen name,
// an epoch cutoff for "don't trust entries older than this run". An
// advisory github.com/theckman/go-flock guard is added around the DB
// file, mirroring reference/gps-core/source_manager.go's single-instance
// `lf *os.File` lock (SourceMgr refuses to open twice against the same
// cache dir); here multiple independent loader processes sharing a
// build root is the realistic case. The lock is taken in Open and held
// until Close, so a second Open against the same directory fails while
// the first cache is open.
package probecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/jmank88/nuts"
	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"
)

var (
	bucketProbes    = []byte("probes")
	bucketProviders = []byte("providers")
)

// Cache is a persistent, cross-run key/value store shared by the Probes
// Resolver and the Module Provider Loader.
type Cache struct {
	db   *bolt.DB
	lock *flock.Flock
	now  int64
}

// Open opens (creating if necessary) the bolt-backed cache rooted at dir.
// now is the epoch against which entry freshness is judged (injected
// rather than taken from time.Now() so callers can make cache behavior
// deterministic in tests).
func Open(dir string, now time.Time) (*Cache, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create probe cache directory %s", dir)
	}
	dbPath := filepath.Join(dir, "probes.db")
	lockPath := filepath.Join(dir, "probes.db.lock")

	fl := flock.NewFlock(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to acquire probe cache lock %s", lockPath)
	}
	if !locked {
		return nil, errors.Errorf("probe cache %s is locked by another process", lockPath)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		fl.Unlock()
		return nil, errors.Wrapf(err, "failed to open probe cache %s", dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketProbes); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketProviders)
		return err
	})
	if err != nil {
		db.Close()
		fl.Unlock()
		return nil, errors.Wrap(err, "failed to initialize probe cache buckets")
	}

	return &Cache{db: db, lock: fl, now: now.Unix()}, nil
}

// Close releases the database and the advisory lock.
func (c *Cache) Close() error {
	err := c.db.Close()
	c.lock.Unlock()
	return err
}

// Entry is one cached record: a probe result or a module-provider search
// path list, tagged with the inputs that must still match for it to be
// considered reusable, and the files whose mtimes invalidate it.
type Entry struct {
	Condition         string            `json:"condition,omitempty"`
	InitialProperties map[string]string `json:"initialProperties,omitempty"`
	SourceCode        string            `json:"sourceCode,omitempty"`
	Values            map[string]string `json:"values,omitempty"`
	SearchPaths       []string          `json:"searchPaths,omitempty"`
	ImportedFiles     []string          `json:"importedFiles,omitempty"`
	ResolvedAt        int64             `json:"resolvedAt"`
}

// key builds the bolt key for id, encoding its length prefix with
// jmank88/nuts the way reference/boltcache's sibling encode file encodes
// other fixed fields, so keys sort and compare cheaply as raw bytes.
func key(id string) []byte {
	b := make([]byte, 0, nuts.KeyLen(uint64(len(id)))+len(id))
	lenKey := make(nuts.Key, nuts.KeyLen(uint64(len(id))))
	lenKey.Put(uint64(len(id)))
	b = append(b, lenKey...)
	b = append(b, id...)
	return b
}

// GetProbe returns the cached probe entry for id, if any.
func (c *Cache) GetProbe(id string) (*Entry, bool, error) {
	return c.get(bucketProbes, id)
}

// PutProbe stores/overwrites the cached probe entry for id.
func (c *Cache) PutProbe(id string, e *Entry) error {
	e.ResolvedAt = c.now
	return c.put(bucketProbes, id, e)
}

// GetProvider returns the cached module-provider entry for key.
func (c *Cache) GetProvider(key string) (*Entry, bool, error) {
	return c.get(bucketProviders, key)
}

// PutProvider stores/overwrites the cached module-provider entry.
func (c *Cache) PutProvider(key string, e *Entry) error {
	e.ResolvedAt = c.now
	return c.put(bucketProviders, key, e)
}

func (c *Cache) get(bucket []byte, id string) (*Entry, bool, error) {
	var e *Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		v := b.Get(key(id))
		if v == nil {
			return nil
		}
		e = &Entry{}
		return json.Unmarshal(v, e)
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "probe cache read failed")
	}
	return e, e != nil, nil
}

func (c *Cache) put(bucket []byte, id string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to encode probe cache entry")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key(id), data)
	})
}

// NewestMtime returns the newest modification time among files, or the
// zero value if none can be stat'd. Used to decide whether an entry's
// recorded ImportedFiles are newer than its ResolvedAt (spec §4.D
// matching rule).
func NewestMtime(files []string) time.Time {
	var newest time.Time
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	return newest
}
