package snapshot

import (
	"fmt"

	"github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
)

// Init constructs every locally-owned agent named in doc and installs it
// into reg, completing the §4.8 construction step Assign's ownership
// computation feeds into. owns reports whether a given global id belongs
// to this master (internal/partition.Table.Owner, narrowed to the one
// predicate Init needs so this package does not import internal/partition
// directly). Local ids in [0, Number) that have no explicit AgentRecord
// are constructed from DefaultValues alone.
//
// Init calls ResolveDefaults on doc first, so every explicit record
// already carries its type's defaults by the time an agent is populated.
func Init(doc *InitDocument, cat *catalog.Catalog, reg agent.Registry, owns func(catalog.GlobalID) bool) error {
	doc.ResolveDefaults()

	for _, at := range doc.AgentTypes {
		layout, ok := cat.AgentTypeByName(at.Type)
		if !ok {
			return fmt.Errorf("%w: unknown agent type %q", ErrMalformedInstance, at.Type)
		}

		byID := make(map[uint64]AgentRecord, len(at.Agents))
		for _, rec := range at.Agents {
			byID[rec.ID] = rec
		}

		for local := uint64(0); local < uint64(at.Number); local++ {
			global := cat.GlobalID(catalog.AgentID(local), layout.ID)
			if !owns(global) {
				continue
			}

			rec, explicit := byID[local]
			if !explicit {
				rec = AgentRecord{ID: local, Attributes: cloneAttrs(at.DefaultValues)}
			}

			zero := layout.Factory(global)
			a, ok := zero.(agent.Agent)
			if !ok {
				return fmt.Errorf("snapshot: agent type %q's factory does not produce an agent.Agent", at.Type)
			}

			if writer, ok := a.(agent.SnapshotWriter); ok {
				if err := writer.FromSnapshot(rec.Attributes); err != nil {
					return fmt.Errorf("%w: agent %d (%s): %v", ErrMalformedInstance, global, at.Type, err)
				}
			}

			reg.Put(global, a)
		}
	}
	return nil
}

func cloneAttrs(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
