// Package snapshot implements the export/convert/init document formats of
// §6 and §4.7's "Export" opcode: a human-diffable JSON representation of a
// simulation's agent population, a pure conversion from the export shape
// into the init shape, and a pluggable Store (file/Redis) for persisting
// either one. Grounded on pkg/session's StorageBackend/FileBackend/
// RedisBackend layering, generalized from a conversation-session log to a
// one-shot whole-population record.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedInstance wraps a decode failure of an export or init document
// (§7's MalformedInstance), always a terminal startup error.
var ErrMalformedInstance = errors.New("snapshot: malformed document")

// AgentRecord is one agent's complete attribute set, keyed by attribute
// name rather than the catalog's internal numeric id, so an export is
// readable without the catalog that produced it.
type AgentRecord struct {
	ID         uint64         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// Document is the export format: every agent, grouped by type name.
// Agents within a type's slice are not required to be in any particular
// order on disk, but Export always writes them sorted by ID for a stable
// diff.
type Document struct {
	Agents map[string][]AgentRecord `json:"agents"`
}

// AgentTypeInit is one type's population as the init document expects it:
// an explicit Number (independent of len(Agents), since an init document
// may specify more agents than it bothers to give individual records to —
// the rest take DefaultValues verbatim) plus the default attribute values
// applied to any record that omits them.
type AgentTypeInit struct {
	Type          string         `json:"type"`
	Number        int            `json:"number"`
	DefaultValues map[string]any `json:"default_values,omitempty"`
	Agents        []AgentRecord  `json:"agents"`

	// DependsOn names agent types that must already be assigned partitions
	// before this one is constructed — e.g. a predator population whose
	// initial interactions target specific prey global ids needs prey
	// constructed first. Empty for the common case of independent types.
	DependsOn []string `json:"depends_on,omitempty"`
}

// InitDocument is the format internal/partition's startup sequence
// consumes: one entry per agent type, each carrying its own population
// size and attribute defaults.
type InitDocument struct {
	AgentTypes []AgentTypeInit `json:"agent_types"`
}

// Convert wraps an exported Document into an InitDocument, one
// AgentTypeInit per type present in doc.Agents, Number set to the
// exported record count and DefaultValues left empty (every exported
// record already carries every attribute explicitly — R1's round trip
// needs no defaulting to reconstruct the original values). Type names are
// walked in sorted order so repeated conversions of the same Document are
// byte-identical.
func Convert(doc *Document) *InitDocument {
	names := make([]string, 0, len(doc.Agents))
	for name := range doc.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &InitDocument{AgentTypes: make([]AgentTypeInit, 0, len(names))}
	for _, name := range names {
		records := doc.Agents[name]
		sorted := make([]AgentRecord, len(records))
		copy(sorted, records)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

		out.AgentTypes = append(out.AgentTypes, AgentTypeInit{
			Type:   name,
			Number: len(sorted),
			Agents: sorted,
		})
	}
	return out
}

// ResolveDefaults backfills every agent record's Attributes with its
// type's DefaultValues for any key the record itself omits. DefaultValues
// is left in place: Init still reads it to build the agents whose local id
// has no record. Called once by pkg/snapshot's Init before an agent is
// constructed from each record.
func (d *InitDocument) ResolveDefaults() {
	for i := range d.AgentTypes {
		at := &d.AgentTypes[i]
		if len(at.DefaultValues) == 0 {
			continue
		}
		for j := range at.Agents {
			rec := &at.Agents[j]
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]any, len(at.DefaultValues))
			}
			for k, v := range at.DefaultValues {
				if _, ok := rec.Attributes[k]; !ok {
					rec.Attributes[k] = v
				}
			}
		}
	}
}

// Merge assembles the per-master parts the control plane's
// ExportSimulation gathers (each one a JSON-encoded partial Document
// covering only that master's locally owned agents) into one Document
// covering the whole population. Agents within a merged type's slice end
// up sorted by ID regardless of which master or arrival order contributed
// them, so a full export is deterministic across runs with the same
// partitioning.
func Merge(parts [][]byte) (*Document, error) {
	out := &Document{Agents: make(map[string][]AgentRecord)}
	for i, part := range parts {
		if len(part) == 0 {
			continue
		}
		var partial Document
		if err := json.Unmarshal(part, &partial); err != nil {
			return nil, fmt.Errorf("%w: part %d: %v", ErrMalformedInstance, i, err)
		}
		for typ, records := range partial.Agents {
			out.Agents[typ] = append(out.Agents[typ], records...)
		}
	}
	for typ := range out.Agents {
		records := out.Agents[typ]
		sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	}
	return out, nil
}
