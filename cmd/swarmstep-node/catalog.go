package main

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
)

// int32Codec is a fixed 4-byte little-endian codec. Production codecs
// live alongside each simulation's own attribute types (the catalog
// package itself only ever ships layout, never a concrete encoding) —
// this one, and float64Codec below, are this demo simulation's.
type int32Codec struct{}

func (int32Codec) Size() int { return 4 }

func (int32Codec) Encode(dst []byte, v any) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(toInt32(v)))
	return append(dst, buf[:]...)
}

func (int32Codec) Decode(src []byte) any {
	return int32(binary.LittleEndian.Uint32(src))
}

// float64Codec is a fixed 8-byte little-endian codec.
type float64Codec struct{}

func (float64Codec) Size() int { return 8 }

func (float64Codec) Encode(dst []byte, v any) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(toFloat64(v)))
	return append(dst, buf[:]...)
}

func (float64Codec) Decode(src []byte) any {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

// toInt32/toFloat64 normalize the two shapes an attribute value can
// arrive in: a Go literal (MODIFY_ATTRIBUTE's decoded wire value, an
// agent's own field) or a float64 (every number an encoding/json
// Unmarshal into map[string]any produces, which is how an init
// document's Attributes reach FromSnapshot).
func toInt32(v any) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int:
		return int32(n)
	case float64:
		return int32(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// Demo catalog layout: one sendable agent type ("walker") with two public
// position attributes and one critical energy attribute, plus one
// interaction type ("greet") a walker sends its lower-numbered neighbor
// each step. This stands in for the precompilation step real deployments
// run over their own catalog definition.
const (
	walkerType catalog.AgentType = 0

	attrX      catalog.Attribute = 0
	attrY      catalog.Attribute = 1
	attrEnergy catalog.Attribute = 2

	greetInteraction catalog.InteractionType = 0
)

func buildDemoCatalog() (*catalog.Catalog, error) {
	b := catalog.NewBuilder()

	if err := b.RegisterAgentType("walker", walkerType, newWalkerAgent); err != nil {
		return nil, err
	}
	if err := b.RegisterAttribute(walkerType, "x", attrX, catalog.Public, int32Codec{}); err != nil {
		return nil, err
	}
	if err := b.RegisterAttribute(walkerType, "y", attrY, catalog.Public, int32Codec{}); err != nil {
		return nil, err
	}
	if err := b.RegisterAttribute(walkerType, "energy", attrEnergy, catalog.Critical, float64Codec{}); err != nil {
		return nil, err
	}
	if err := b.RegisterInteractionType("greet", greetInteraction, nil,
		catalog.InteractionFieldDescriptor{Name: "x", Codec: int32Codec{}},
		catalog.InteractionFieldDescriptor{Name: "y", Codec: int32Codec{}},
	); err != nil {
		return nil, err
	}

	return b.Build()
}

// walkerAgent is the demo catalog's only agent type: a point that steps
// forward each tick, greets its lower-numbered neighbor with its new
// position, and spends a little energy doing it. Grounded on
// agent/example_test.go's walkerAgent, extended with a critical
// attribute, AttributeWriter/SnapshotWriter support, and an outgoing
// interaction.
type walkerAgent struct {
	mu     sync.Mutex
	x, y   int32
	energy float64
}

func newWalkerAgent(id catalog.GlobalID) any {
	return &walkerAgent{energy: 100}
}

func (w *walkerAgent) Behavior(ctx context.Context, env *agent.Env) error {
	w.mu.Lock()
	w.x++
	w.energy -= 0.1
	x, y := w.x, w.y
	w.mu.Unlock()

	if env.Self == 0 {
		return nil
	}
	neighbor := env.Self - 1
	if _, err := env.FetchPublic(ctx, neighbor); err != nil {
		return nil
	}

	payload := int32Codec{}.Encode(nil, x)
	payload = int32Codec{}.Encode(payload, y)
	env.Send(neighbor, greetInteraction, payload)
	return nil
}

func (w *walkerAgent) ReceiveMessage(msg *agent.Message) {}

func (w *walkerAgent) CheckModifiedCritical() bool { return true }

func (w *walkerAgent) CopyPublic(dst []byte) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	binary.LittleEndian.PutUint32(dst[0:4], uint32(w.x))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(w.y))
	return 8
}

func (w *walkerAgent) CopyCritical(dst []byte) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	binary.LittleEndian.PutUint64(dst[0:8], math.Float64bits(w.energy))
	return 8
}

func (w *walkerAgent) ToWire() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := make([]byte, 0, 16)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(w.x))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(w.y))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(w.energy))
	return buf
}

func (w *walkerAgent) ToSnapshot() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]any{"x": w.x, "y": w.y, "energy": w.energy}
}

// FromSnapshot implements agent.SnapshotWriter, populating a
// freshly-constructed walkerAgent from an init document's record.
func (w *walkerAgent) FromSnapshot(attrs map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := attrs["x"]; ok {
		w.x = toInt32(v)
	}
	if v, ok := attrs["y"]; ok {
		w.y = toInt32(v)
	}
	if v, ok := attrs["energy"]; ok {
		w.energy = toFloat64(v)
	}
	return nil
}

// WriteAttribute implements agent.AttributeWriter, the owning master's
// side of MODIFY_ATTRIBUTE.
func (w *walkerAgent) WriteAttribute(attr catalog.Attribute, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch attr {
	case attrX:
		w.x = int32Codec{}.Decode(value).(int32)
	case attrY:
		w.y = int32Codec{}.Decode(value).(int32)
	case attrEnergy:
		w.energy = float64Codec{}.Decode(value).(float64)
	}
	return nil
}
