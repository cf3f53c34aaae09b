package agent

import "github.com/swarmstep/swarmstep/internal/catalog"

// Registry is a master's local store of instantiated agents, keyed by
// global id. internal/master holds one Registry per master and consults
// it both to invoke Behavior during RunBehaviors and to answer
// existence checks for drop-on-missing-recipient (I6/B3).
type Registry interface {
	// Put installs an agent under its global id, replacing any prior
	// entry for the same id.
	Put(id catalog.GlobalID, a Agent)

	// Get retrieves the locally owned agent for a global id.
	Get(id catalog.GlobalID) (Agent, bool)

	// Remove deletes an agent's entry (a kill/death operation removed
	// it).
	Remove(id catalog.GlobalID)

	// IDs returns every locally owned agent's global id, in ascending
	// order, for deterministic handler-pool assignment (P5).
	IDs() []catalog.GlobalID
}
