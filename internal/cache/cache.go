// Package cache implements the per-step, per-master attribute read cache:
// within one step, a remote public attribute is fetched across the network
// at most once per (agent, attribute) pair, no matter how many local
// handlers ask for it.
package cache

import (
	"sync"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// Key identifies one cached attribute read.
type Key struct {
	Agent catalog.GlobalID
	Attr  catalog.Attribute
}

// FetchFunc retrieves the value for a Key on a cache miss. It is called at
// most once per Key per step, even under concurrent callers.
type FetchFunc func() ([]byte, error)

// entry holds one in-flight or completed fetch. Its own mutex (rather than
// the cache's) lets unrelated keys fetch concurrently while callers of the
// same key serialize on the single underlying fetch.
type entry struct {
	mu    sync.Mutex
	ready bool
	value []byte
	err   error
}

func (e *entry) reset() {
	e.ready = false
	e.value = nil
	e.err = nil
}

// Step is one step's attribute cache. It is safe for concurrent use by
// every handler goroutine on a master.
type Step struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	pool    sync.Pool
}

// New creates an empty Step cache.
func New() *Step {
	s := &Step{
		entries: make(map[Key]*entry),
	}
	s.pool.New = func() any { return &entry{} }
	return s
}

// Get returns the cached value for key, invoking fetch on a miss. Two
// goroutines racing on the same key never both call fetch: the second
// blocks until the first's result is ready and reuses it.
func (s *Step) Get(key Key, fetch FetchFunc) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		// Re-check under the write lock: another goroutine may have
		// inserted the entry between the RUnlock above and this Lock.
		e, ok = s.entries[key]
		if !ok {
			e = s.pool.Get().(*entry)
			e.reset()
			s.entries[key] = e
		}
		s.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		e.value, e.err = fetch()
		e.ready = true
	}
	return e.value, e.err
}

// Peek returns the cached value for key without fetching, reporting
// whether it was present and already resolved.
func (s *Step) Peek(key Key) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, false
	}
	return e.value, true
}

// Len reports how many keys have been recorded (hit or in flight) since the
// last Reset.
func (s *Step) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset clears every cached entry for the next step. Entries are returned
// to the internal pool instead of being discarded, so a long-running
// master does not churn the allocator once per step.
func (s *Step) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		delete(s.entries, k)
		s.pool.Put(e)
	}
}
