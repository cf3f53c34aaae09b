// Package agent defines the per-agent-type record interface a
// swarmstep simulation runs: the Agent, Message, Env, Registry and
// Factory types a custom agent type plugs into internal/master through.
//
// # Basic usage
//
// Implement Agent for a type, then register a Factory for it with the
// catalog:
//
//	type Walker struct {
//	    x, y      int32
//	    neighbors []uint64
//	}
//
//	func (w *Walker) Behavior(ctx context.Context, env *agent.Env) error {
//	    for _, n := range w.neighbors {
//	        if pub, err := env.FetchPublic(ctx, catalog.GlobalID(n)); err == nil {
//	            _ = pub // read a neighbor's public position
//	        }
//	    }
//	    w.x++
//	    return nil
//	}
//
//	func (w *Walker) ReceiveMessage(msg *agent.Message)     { /* buffer for next Behavior */ }
//	func (w *Walker) CheckModifiedCritical() bool           { return true }
//	func (w *Walker) CopyPublic(dst []byte) int             { return encodePosition(dst, w.x, w.y) }
//	func (w *Walker) CopyCritical(dst []byte) int           { return encodePosition(dst, w.x, w.y) }
//	func (w *Walker) ToWire() []byte                        { return encodeFull(w) }
//	func (w *Walker) ToSnapshot() map[string]any            { return map[string]any{"x": w.x, "y": w.y} }
//
// # Registry
//
// A LocalRegistry is the in-process store internal/master keeps of its
// locally owned agents, keyed by global id rather than by name:
//
//	reg := agent.NewLocalRegistry()
//	reg.Put(id, &Walker{})
//
// handler.Pool.Run reads agents back out of the Registry by id to invoke
// Behavior, round-robin across its worker groups.
package agent
