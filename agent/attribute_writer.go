package agent

import "github.com/swarmstep/swarmstep/internal/catalog"

// AttributeWriter is an optional capability an Agent implementation may
// satisfy to accept a direct, out-of-band attribute write — the
// MODIFY_ATTRIBUTE control-plane opcode's effect on the owning master
// (§4.7). Agents that do not implement it simply cannot be targeted by
// MODIFY_ATTRIBUTE; internal/control logs and ignores the command rather
// than failing the run.
type AttributeWriter interface {
	// WriteAttribute decodes value using the attribute's catalog codec
	// and commits it in place, bypassing the normal Behavior-driven
	// update path.
	WriteAttribute(attr catalog.Attribute, value []byte) error
}
