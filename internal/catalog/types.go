// Package catalog holds the frozen layout of agent types, their attributes,
// and interaction types that a simulation run is built from. The catalog is
// populated once, before any window or cache is allocated, and never changes
// for the lifetime of a run.
package catalog

// AgentID identifies an agent within its type (I1: local id, not global).
type AgentID uint64

// GlobalID identifies an agent cluster-wide: LocalID*T + TypeID (I1).
type GlobalID uint64

// MasterID identifies a peer process in the cluster.
type MasterID int32

// AgentType identifies an agent's type.
type AgentType uint64

// InteractionType identifies a kind of interaction payload.
type InteractionType uint64

// Attribute identifies an attribute within an agent type.
type Attribute uint64

// Time is a simulation step counter.
type Time uint64

// Visibility classifies an attribute's replication behavior (I4).
type Visibility int

const (
	// Private attributes are never replicated off their owning master.
	Private Visibility = iota
	// Public attributes are readable remotely via the public window's
	// one-sided-style fetch, refreshed once per step.
	Public
	// Critical attributes are eagerly broadcast to every master's critical
	// window replica whenever they change.
	Critical
)

func (v Visibility) String() string {
	switch v {
	case Private:
		return "private"
	case Public:
		return "public"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// ToGlobalID computes the global id for a local id and type, per I1.
func ToGlobalID(local AgentID, typ AgentType, nbTypes uint64) GlobalID {
	return GlobalID(uint64(local)*nbTypes + uint64(typ))
}

// SplitGlobalID recovers the local id and type from a global id, per I1.
func SplitGlobalID(g GlobalID, nbTypes uint64) (AgentID, AgentType) {
	return AgentID(uint64(g) / nbTypes), AgentType(uint64(g) % nbTypes)
}
