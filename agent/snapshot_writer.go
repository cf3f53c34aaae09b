package agent

// SnapshotWriter is the inverse of Agent.ToSnapshot: an optional capability
// an Agent implementation may satisfy to accept bulk population from an
// init document's decoded attribute map (§4.8 construction, pkg/snapshot's
// Init). Agents that do not implement it are constructed at their catalog
// zero value and never receive the document's values.
type SnapshotWriter interface {
	// FromSnapshot decodes attrs (the same shape ToSnapshot produces) and
	// populates the agent's record in place. Keys absent from attrs (an
	// init document's per-type DefaultValues already backfilled any the
	// source record omitted) are left at the zero value.
	FromSnapshot(attrs map[string]any) error
}
