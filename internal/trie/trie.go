// Package trie is a typed wrapper around github.com/armon/go-radix,
// avoiding interface{} type assertions at call sites. Adapted from
// reference/gps-core/typed_radix.go's deducerTrie, specialized to the
// value this loader actually stores: a module provider's search-path
// list, keyed by the dotted-segment path a provider lookup is tried under
// (spec §4.E).
package trie

import "github.com/armon/go-radix"

// Entry is what the Module Provider Loader indexes by prefix: a resolved
// set of search paths plus which lookup mode produced them.
type Entry struct {
	SearchPaths []string
	LookupMode  string
}

// Trie is a prefix tree from dotted module-name segments (joined by "/",
// matching the directory layout spec §4.F/4.E describe) to an Entry.
type Trie struct {
	t *radix.Tree
}

// New creates an empty Trie.
func New() Trie {
	return Trie{t: radix.New()}
}

// Delete removes key, returning the previous value and whether it existed.
func (t Trie) Delete(key string) (Entry, bool) {
	if v, had := t.t.Delete(key); had {
		return v.(Entry), had
	}
	return Entry{}, false
}

// Get looks up key exactly.
func (t Trie) Get(key string) (Entry, bool) {
	if v, has := t.t.Get(key); has {
		return v.(Entry), has
	}
	return Entry{}, false
}

// Insert adds or updates key, returning the previous value if any.
func (t Trie) Insert(key string, v Entry) (Entry, bool) {
	if v2, had := t.t.Insert(key, v); had {
		return v2.(Entry), had
	}
	return Entry{}, false
}

// Len reports the number of entries in the tree.
func (t Trie) Len() int { return t.t.Len() }

// LongestPrefix returns the entry whose key is the longest prefix of key,
// used to find the most specific module-providers/<segments>/provider.qbs
// match for a dotted module name (spec §4.E "Scoped" lookup mode).
func (t Trie) LongestPrefix(key string) (string, Entry, bool) {
	if p, v, has := t.t.LongestPrefix(key); has {
		return p, v.(Entry), has
	}
	return "", Entry{}, false
}

// ToMap walks the tree into a plain map, for diagnostics and tests.
func (t Trie) ToMap() map[string]Entry {
	m := make(map[string]Entry)
	t.t.Walk(func(s string, v interface{}) bool {
		m[s] = v.(Entry)
		return false
	})
	return m
}
