// Package agent defines the interface a simulation's per-type agent record
// implements: the per-step Behavior callback, interaction delivery, and the
// handful of capabilities the runtime needs to move an agent's data through
// the public/critical windows and into snapshot export, without the runtime
// ever needing to know the concrete record layout of any particular type.
package agent

import "context"

// Agent is the interface every registered agent type's factory produces.
// The concrete record layout per type is data (the catalog's offset/size
// maps), not code — Agent is the one polymorphic seam the runtime needs.
//
// Implementations hold their own MasterID and resolve peer masters through
// the handler-local registry passed into Behavior; they never keep a raw
// back-pointer to their owning Master (no ownership cycle).
type Agent interface {
	// Behavior runs this agent's per-step logic: reading remotely-owned
	// public/critical attributes through the context-scoped Window,
	// reading delivered interactions, and queuing outgoing ones through
	// the context-scoped Outbox. Called once per step, inside the
	// RunBehaviors phase, after ReceiveMessage has been called for every
	// interaction addressed to this agent this step.
	Behavior(ctx context.Context, env *Env) error

	// ReceiveMessage delivers one interaction addressed to this agent.
	// Called once per delivered interaction, before Behavior runs; the
	// agent is responsible for buffering what it needs for Behavior to
	// consume, and for clearing that buffer at the end of its own
	// Behavior call.
	ReceiveMessage(msg *Message)

	// CheckModifiedCritical reports whether this agent's critical
	// sub-record changed since the last time it was published, by
	// comparing against the last committed copy (B4: no diff, no
	// broadcast). Called during PublishAttributes, after Behavior has run.
	CheckModifiedCritical() bool

	// CopyPublic encodes this agent's public sub-record into dst,
	// following the catalog's computed public offsets for this agent's
	// type, and returns the number of bytes written.
	CopyPublic(dst []byte) int

	// CopyCritical encodes this agent's critical sub-record into dst,
	// following the catalog's computed critical offsets for this agent's
	// type, and returns the number of bytes written. Called only when
	// CheckModifiedCritical reports a change.
	CopyCritical(dst []byte) int

	// ToWire encodes this agent's complete record (all attributes,
	// regardless of visibility) for point-to-point transfer during
	// partitioning.
	ToWire() []byte

	// ToSnapshot encodes this agent's complete record in the stable,
	// human-diffable form pkg/snapshot persists and pkg/snapshot/convert
	// round-trips.
	ToSnapshot() map[string]any
}

// Factory creates a zero-value agent instance for a given global id,
// before its record is populated from an init document or a ToWire
// transfer. catalog.AgentFactory is this same shape, specialized to the
// agent package's Agent interface rather than the unqualified any the
// catalog keeps internally (to avoid an import cycle with catalog).
type Factory func(id uint64) Agent
