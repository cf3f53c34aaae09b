// Package partition implements initialization and agent-to-master
// assignment: round-robin distribution of each agent type's population
// across the masters in a run, and the broadcast that installs the
// resulting ownership table on every master.
package partition

import (
	"sort"
	"sync"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// RoundRobin assigns local ids [0, total) of one agent type to masters
// [0, nbMasters) round-robin, in ascending id order. It is a pure
// function: every master that calls it with the same (total, nbMasters)
// computes the identical assignment (P5), which is why the cluster only
// needs to agree on total and nbMasters, not exchange an explicit id list.
func RoundRobin(total uint64, nbMasters int) map[catalog.MasterID][]catalog.AgentID {
	out := make(map[catalog.MasterID][]catalog.AgentID, nbMasters)
	for i := uint64(0); i < total; i++ {
		m := catalog.MasterID(int(i) % nbMasters)
		out[m] = append(out[m], catalog.AgentID(i))
	}
	return out
}

// ExtendRoundRobin assigns the n newly created local ids
// [existingTotal, existingTotal+n) round-robin, continuing the same
// rotation a prior RoundRobin(existingTotal, nbMasters) left off at. This
// realizes ADD_AGENTS: new agents extend the type's population without
// reshuffling any existing agent's owner.
func ExtendRoundRobin(existingTotal, n uint64, nbMasters int) map[catalog.MasterID][]catalog.AgentID {
	out := make(map[catalog.MasterID][]catalog.AgentID, nbMasters)
	for i := existingTotal; i < existingTotal+n; i++ {
		m := catalog.MasterID(int(i) % nbMasters)
		out[m] = append(out[m], catalog.AgentID(i))
	}
	return out
}

// Table is the per-master ownership record: for every agent type, which
// master owns each local id, and the reverse lookup of which local ids
// this master owns.
type Table struct {
	cat  *catalog.Catalog
	self catalog.MasterID

	mu       sync.RWMutex
	total    map[catalog.AgentType]uint64
	ownerOf  map[catalog.AgentType]map[catalog.AgentID]catalog.MasterID
	localIDs map[catalog.AgentType][]catalog.AgentID
}

// New creates an empty Table for the given master, within the given
// catalog.
func New(cat *catalog.Catalog, self catalog.MasterID) *Table {
	return &Table{
		cat:      cat,
		self:     self,
		total:    make(map[catalog.AgentType]uint64),
		ownerOf:  make(map[catalog.AgentType]map[catalog.AgentID]catalog.MasterID),
		localIDs: make(map[catalog.AgentType][]catalog.AgentID),
	}
}

// Install replaces the assignment for one agent type with the given
// total population size and full owning-master map. Install is
// idempotent: every caller (Assign, Extend, Receive) always passes the
// complete, authoritative assignment for typ recomputed from (total,
// nbMasters), never a fragment, so re-installing the same type after
// growth (ADD_AGENTS) simply replaces the prior table with the
// now-larger one rather than accumulating duplicates.
func (t *Table) Install(typ catalog.AgentType, total uint64, assignment map[catalog.MasterID][]catalog.AgentID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owners := make(map[catalog.AgentID]catalog.MasterID, total)
	var mine []catalog.AgentID
	for master, ids := range assignment {
		for _, id := range ids {
			owners[id] = master
			if master == t.self {
				mine = append(mine, id)
			}
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i] < mine[j] })

	t.total[typ] = total
	t.ownerOf[typ] = owners
	t.localIDs[typ] = mine
}

// Owner reports which master owns the agent identified by global id.
func (t *Table) Owner(id catalog.GlobalID) (catalog.MasterID, bool) {
	local, typ := t.cat.SplitGlobalID(id)

	t.mu.RLock()
	defer t.mu.RUnlock()

	owners, ok := t.ownerOf[typ]
	if !ok {
		return 0, false
	}
	master, ok := owners[local]
	return master, ok
}

// Exists reports whether a global id is currently assigned to any master.
func (t *Table) Exists(id catalog.GlobalID) bool {
	_, ok := t.Owner(id)
	return ok
}

// LocalIDs returns the local ids of the given type this master owns.
func (t *Table) LocalIDs(typ catalog.AgentType) []catalog.AgentID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]catalog.AgentID, len(t.localIDs[typ]))
	copy(out, t.localIDs[typ])
	return out
}

// Total returns the cluster-wide population size of the given type.
func (t *Table) Total(typ catalog.AgentType) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total[typ]
}

// Remove deletes an agent's ownership entry (a death/kill operation
// removed it). Subsequent Owner/Exists calls report it as gone, which is
// what drives drop-on-missing-recipient (I6/B3) for interactions still in
// flight to it.
func (t *Table) Remove(id catalog.GlobalID) {
	local, typ := t.cat.SplitGlobalID(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	owners, ok := t.ownerOf[typ]
	if !ok {
		return
	}
	master, ok := owners[local]
	if !ok {
		return
	}
	delete(owners, local)

	if master == t.self {
		ids := t.localIDs[typ]
		for i, lid := range ids {
			if lid == local {
				t.localIDs[typ] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}
