package main

import (
	"context"
	"testing"

	"github.com/swarmstep/swarmstep/agent"
)

func TestInt32Codec_RoundTrips(t *testing.T) {
	c := int32Codec{}
	if c.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", c.Size())
	}
	for _, v := range []int32{0, 1, -1, 42, -12345} {
		buf := c.Encode(nil, v)
		if len(buf) != 4 {
			t.Fatalf("Encode(%d) len = %d, want 4", v, len(buf))
		}
		if got := c.Decode(buf); got != v {
			t.Fatalf("Decode(Encode(%d)) = %v, want %d", v, got, v)
		}
	}
}

func TestInt32Codec_EncodeAppends(t *testing.T) {
	c := int32Codec{}
	dst := []byte{0xAA}
	buf := c.Encode(dst, int32(7))
	if len(buf) != 5 || buf[0] != 0xAA {
		t.Fatalf("Encode did not append onto dst, got %v", buf)
	}
}

func TestFloat64Codec_RoundTrips(t *testing.T) {
	c := float64Codec{}
	if c.Size() != 8 {
		t.Fatalf("Size() = %d, want 8", c.Size())
	}
	for _, v := range []float64{0, 1.5, -99.125, 100} {
		buf := c.Encode(nil, v)
		if len(buf) != 8 {
			t.Fatalf("Encode(%v) len = %d, want 8", v, len(buf))
		}
		if got := c.Decode(buf); got != v {
			t.Fatalf("Decode(Encode(%v)) = %v, want %v", v, got, v)
		}
	}
}

func TestToInt32_NormalizesShapes(t *testing.T) {
	cases := []struct {
		in   any
		want int32
	}{
		{int32(5), 5},
		{int(5), 5},
		{float64(5), 5},
		{"bogus", 0},
	}
	for _, tt := range cases {
		if got := toInt32(tt.in); got != tt.want {
			t.Errorf("toInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToFloat64_NormalizesShapes(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{float64(2.5), 2.5},
		{float32(2.5), 2.5},
		{int(2), 2},
		{"bogus", 0},
	}
	for _, tt := range cases {
		if got := toFloat64(tt.in); got != tt.want {
			t.Errorf("toFloat64(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildDemoCatalog(t *testing.T) {
	cat, err := buildDemoCatalog()
	if err != nil {
		t.Fatalf("buildDemoCatalog: %v", err)
	}

	layout, ok := cat.AgentTypeByName("walker")
	if !ok {
		t.Fatal("walker agent type not registered")
	}
	if layout.ID != walkerType {
		t.Fatalf("walker id = %d, want %d", layout.ID, walkerType)
	}
	if len(layout.Attrs) != 3 {
		t.Fatalf("walker has %d attributes, want 3", len(layout.Attrs))
	}

	it, ok := cat.InteractionType(greetInteraction)
	if !ok {
		t.Fatal("greet interaction type not registered")
	}
	if len(it.Fields) != 2 {
		t.Fatalf("greet has %d fields, want 2", len(it.Fields))
	}
}

func TestWalkerAgent_FromSnapshotAndToSnapshot(t *testing.T) {
	w := &walkerAgent{}
	if err := w.FromSnapshot(map[string]any{"x": float64(3), "y": float64(4), "energy": float64(50)}); err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	snap := w.ToSnapshot()
	if snap["x"] != int32(3) || snap["y"] != int32(4) || snap["energy"] != float64(50) {
		t.Fatalf("ToSnapshot() = %+v, want x=3 y=4 energy=50", snap)
	}
}

func TestWalkerAgent_WriteAttribute(t *testing.T) {
	w := &walkerAgent{}
	if err := w.WriteAttribute(attrX, int32Codec{}.Encode(nil, int32(9))); err != nil {
		t.Fatalf("WriteAttribute(x): %v", err)
	}
	if err := w.WriteAttribute(attrEnergy, float64Codec{}.Encode(nil, 12.5)); err != nil {
		t.Fatalf("WriteAttribute(energy): %v", err)
	}

	snap := w.ToSnapshot()
	if snap["x"] != int32(9) {
		t.Fatalf("x = %v, want 9", snap["x"])
	}
	if snap["energy"] != 12.5 {
		t.Fatalf("energy = %v, want 12.5", snap["energy"])
	}
}

func TestWalkerAgent_CopyPublicAndCritical(t *testing.T) {
	w := newWalkerAgent(0).(*walkerAgent)
	w.x, w.y, w.energy = 10, 20, 75

	pub := make([]byte, 8)
	if n := w.CopyPublic(pub); n != 8 {
		t.Fatalf("CopyPublic returned %d, want 8", n)
	}
	if got := int32Codec{}.Decode(pub[0:4]).(int32); got != 10 {
		t.Fatalf("public x = %d, want 10", got)
	}
	if got := int32Codec{}.Decode(pub[4:8]).(int32); got != 20 {
		t.Fatalf("public y = %d, want 20", got)
	}

	crit := make([]byte, 8)
	if n := w.CopyCritical(crit); n != 8 {
		t.Fatalf("CopyCritical returned %d, want 8", n)
	}
	if got := float64Codec{}.Decode(crit).(float64); got != 75 {
		t.Fatalf("critical energy = %v, want 75", got)
	}
}

func TestWalkerAgent_BehaviorStopsAtAgentZero(t *testing.T) {
	w := newWalkerAgent(0).(*walkerAgent)
	env := &agent.Env{Self: 0}
	if err := w.Behavior(context.Background(), env); err != nil {
		t.Fatalf("Behavior: %v", err)
	}
	if w.x != 1 {
		t.Fatalf("x after one step = %d, want 1", w.x)
	}
	if w.energy >= 100 {
		t.Fatalf("energy after one step = %v, want < 100", w.energy)
	}
}
