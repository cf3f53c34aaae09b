package snapshot

import (
	"context"
	"testing"

	"github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
)

// walkerStub is a minimal agent.Agent + agent.SnapshotWriter used only to
// exercise Export/Convert/Init's round trip (R1), independent of any real
// simulation's record layout.
type walkerStub struct {
	x float64
}

func (w *walkerStub) Behavior(context.Context, *agent.Env) error { return nil }
func (w *walkerStub) ReceiveMessage(*agent.Message)              {}
func (w *walkerStub) CheckModifiedCritical() bool                { return false }
func (w *walkerStub) CopyPublic(dst []byte) int                  { return 0 }
func (w *walkerStub) CopyCritical(dst []byte) int                { return 0 }
func (w *walkerStub) ToWire() []byte                             { return nil }

func (w *walkerStub) ToSnapshot() map[string]any {
	return map[string]any{"x": w.x}
}

func (w *walkerStub) FromSnapshot(attrs map[string]any) error {
	if v, ok := attrs["x"]; ok {
		w.x = v.(float64)
	}
	return nil
}

func buildWalkerCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	b := catalog.NewBuilder()
	if err := b.RegisterAgentType("walker", 0, func(id catalog.GlobalID) any {
		return &walkerStub{}
	}); err != nil {
		t.Fatalf("RegisterAgentType: %v", err)
	}
	cat, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return cat
}

func TestExportConvertInit_RoundTrip(t *testing.T) {
	cat := buildWalkerCatalog(t)

	src := agent.NewLocalRegistry()
	walkerType, _ := cat.AgentTypeByName("walker")
	for local, x := range []float64{10, 20, 30} {
		id := cat.GlobalID(catalog.AgentID(local), walkerType.ID)
		src.Put(id, &walkerStub{x: x})
	}

	exporter := NewExporter(cat, src)
	data, err := exporter.Export(context.Background(), 5)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	merged, err := Merge([][]byte{data})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	initDoc := Convert(merged)

	dst := agent.NewLocalRegistry()
	owns := func(catalog.GlobalID) bool { return true } // single-master test
	if err := Init(initDoc, cat, dst, owns); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for local, want := range []float64{10, 20, 30} {
		id := cat.GlobalID(catalog.AgentID(local), walkerType.ID)
		a, ok := dst.Get(id)
		if !ok {
			t.Fatalf("agent %d missing after Init", id)
		}
		got := a.(*walkerStub).x
		if got != want {
			t.Errorf("agent %d: x = %v, want %v", id, got, want)
		}
	}
}

func TestInit_OwnershipFilter(t *testing.T) {
	cat := buildWalkerCatalog(t)
	walkerType, _ := cat.AgentTypeByName("walker")

	doc := &InitDocument{AgentTypes: []AgentTypeInit{
		{Type: "walker", Number: 3},
	}}

	owned := cat.GlobalID(1, walkerType.ID)
	owns := func(id catalog.GlobalID) bool { return id == owned }

	reg := agent.NewLocalRegistry()
	if err := Init(doc, cat, reg, owns); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only the owned agent constructed)", reg.Len())
	}
	if _, ok := reg.Get(owned); !ok {
		t.Fatalf("owned agent %d not constructed", owned)
	}
}

func TestInit_DefaultValuesBackfillUnrecordedAgents(t *testing.T) {
	cat := buildWalkerCatalog(t)
	walkerType, _ := cat.AgentTypeByName("walker")

	doc := &InitDocument{AgentTypes: []AgentTypeInit{
		{
			Type:          "walker",
			Number:        2,
			DefaultValues: map[string]any{"x": 7.0},
			Agents:        []AgentRecord{{ID: 0, Attributes: map[string]any{"x": 1.0}}},
		},
	}}

	reg := agent.NewLocalRegistry()
	owns := func(catalog.GlobalID) bool { return true }
	if err := Init(doc, cat, reg, owns); err != nil {
		t.Fatalf("Init: %v", err)
	}

	withRecord, _ := reg.Get(cat.GlobalID(0, walkerType.ID))
	if got := withRecord.(*walkerStub).x; got != 1.0 {
		t.Errorf("agent 0: x = %v, want 1.0", got)
	}
	withoutRecord, _ := reg.Get(cat.GlobalID(1, walkerType.ID))
	if got := withoutRecord.(*walkerStub).x; got != 7.0 {
		t.Errorf("agent 1: x = %v, want 7.0 (from DefaultValues)", got)
	}
}
