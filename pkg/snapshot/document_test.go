package snapshot

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestConvert_SortsTypesAndAgents(t *testing.T) {
	doc := &Document{
		Agents: map[string][]AgentRecord{
			"walker": {
				{ID: 2, Attributes: map[string]any{"x": 2.0}},
				{ID: 0, Attributes: map[string]any{"x": 0.0}},
			},
			"ant": {
				{ID: 1, Attributes: map[string]any{"y": 1.0}},
			},
		},
	}

	init := Convert(doc)
	if len(init.AgentTypes) != 2 {
		t.Fatalf("len(AgentTypes) = %d, want 2", len(init.AgentTypes))
	}
	if init.AgentTypes[0].Type != "ant" || init.AgentTypes[1].Type != "walker" {
		t.Fatalf("type order = %q, %q; want ant, walker", init.AgentTypes[0].Type, init.AgentTypes[1].Type)
	}
	walker := init.AgentTypes[1]
	if walker.Number != 2 {
		t.Fatalf("walker.Number = %d, want 2", walker.Number)
	}
	if walker.Agents[0].ID != 0 || walker.Agents[1].ID != 2 {
		t.Fatalf("walker.Agents not sorted by ID: %+v", walker.Agents)
	}
}

func TestResolveDefaults_OnlyFillsMissingKeys(t *testing.T) {
	doc := &InitDocument{
		AgentTypes: []AgentTypeInit{
			{
				Type:          "walker",
				Number:        2,
				DefaultValues: map[string]any{"x": 0.0, "y": 0.0},
				Agents: []AgentRecord{
					{ID: 0, Attributes: map[string]any{"x": 5.0}},
				},
			},
		},
	}

	doc.ResolveDefaults()

	rec := doc.AgentTypes[0].Agents[0]
	if rec.Attributes["x"] != 5.0 {
		t.Fatalf("x = %v, want 5.0 (explicit value must not be overwritten)", rec.Attributes["x"])
	}
	if rec.Attributes["y"] != 0.0 {
		t.Fatalf("y = %v, want 0.0 (default backfilled)", rec.Attributes["y"])
	}
}

func TestMerge_ConcatenatesAndSortsAcrossParts(t *testing.T) {
	partA, err := json.Marshal(&Document{Agents: map[string][]AgentRecord{
		"walker": {{ID: 2, Attributes: map[string]any{"x": 2.0}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	partB, err := json.Marshal(&Document{Agents: map[string][]AgentRecord{
		"walker": {{ID: 0, Attributes: map[string]any{"x": 0.0}}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	merged, err := Merge([][]byte{partA, partB})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	walkers := merged.Agents["walker"]
	if len(walkers) != 2 {
		t.Fatalf("len(walkers) = %d, want 2", len(walkers))
	}
	if walkers[0].ID != 0 || walkers[1].ID != 2 {
		t.Fatalf("merged walkers not sorted by ID: %+v", walkers)
	}
}

func TestMerge_MalformedPartReturnsErrMalformedInstance(t *testing.T) {
	_, err := Merge([][]byte{[]byte("not json")})
	if err == nil {
		t.Fatal("expected an error for malformed part")
	}
	if !errors.Is(err, ErrMalformedInstance) {
		t.Fatalf("error = %v, want wrapping ErrMalformedInstance", err)
	}
}
