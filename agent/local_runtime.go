package agent

import (
	"sort"
	"sync"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// LocalRegistry is the default in-process Registry: a single map guarded
// by one RWMutex, safe for the concurrent Get calls handler.Pool's worker
// groups make during RunBehaviors, and for the occasional Put/Remove a
// partition or control operation makes between steps.
type LocalRegistry struct {
	mu     sync.RWMutex
	agents map[catalog.GlobalID]Agent
}

// NewLocalRegistry creates an empty LocalRegistry.
func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{agents: make(map[catalog.GlobalID]Agent)}
}

// Put installs an agent under its global id.
func (r *LocalRegistry) Put(id catalog.GlobalID, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[id] = a
}

// Get retrieves the locally owned agent for a global id.
func (r *LocalRegistry) Get(id catalog.GlobalID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// Remove deletes an agent's entry.
func (r *LocalRegistry) Remove(id catalog.GlobalID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// IDs returns every locally owned agent's global id in ascending order.
func (r *LocalRegistry) IDs() []catalog.GlobalID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]catalog.GlobalID, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len reports the number of locally owned agents.
func (r *LocalRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
