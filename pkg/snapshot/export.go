package snapshot

import (
	"context"
	"encoding/json"

	"github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
)

// Exporter implements internal/master.ExportSink: on a GatherExport
// request it walks every agent this master owns, groups them by type
// name, and returns the JSON encoding of the resulting partial Document.
// control.Coordinator.ExportSimulation gathers one of these per master and
// Merge assembles them into the whole-population Document.
type Exporter struct {
	cat *catalog.Catalog
	reg agent.Registry
}

// NewExporter builds an Exporter over cat (for type-name lookups by
// splitting each agent's global id) and reg (this master's local agent
// registry).
func NewExporter(cat *catalog.Catalog, reg agent.Registry) *Exporter {
	return &Exporter{cat: cat, reg: reg}
}

// Export implements master.ExportSink.
func (e *Exporter) Export(ctx context.Context, step catalog.Time) ([]byte, error) {
	doc := Document{Agents: make(map[string][]AgentRecord)}

	for _, id := range e.reg.IDs() {
		a, ok := e.reg.Get(id)
		if !ok {
			continue
		}
		local, typ := e.cat.SplitGlobalID(id)
		layout, ok := e.cat.AgentType(typ)
		if !ok {
			continue
		}
		doc.Agents[layout.Name] = append(doc.Agents[layout.Name], AgentRecord{
			ID:         uint64(local),
			Attributes: a.ToSnapshot(),
		})
	}

	return json.Marshal(doc)
}
