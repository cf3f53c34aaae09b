package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Codec knows how to encode/decode a single attribute value to/from its wire
// representation. Implementations must be safe for concurrent use.
type Codec interface {
	// Size returns the fixed wire size in bytes for this attribute.
	Size() int
	// Encode appends the wire representation of v to dst.
	Encode(dst []byte, v any) []byte
	// Decode reads a value out of src (which is exactly Size() bytes).
	Decode(src []byte) any
}

// AttributeDescriptor is the frozen description of one attribute of one
// agent type, including its offset within the type's public or critical
// sub-record.
type AttributeDescriptor struct {
	Name       string
	ID         Attribute
	Visibility Visibility
	Codec      Codec
	// Offset is the byte offset of this attribute within its visibility
	// class's sub-record for the owning agent type (I4: public and
	// critical offsets are computed independently).
	Offset int
}

// AgentTypeLayout is the frozen per-type record layout.
type AgentTypeLayout struct {
	Name    string
	ID      AgentType
	Attrs   []AttributeDescriptor
	byName  map[string]int
	Factory AgentFactory

	// PublicSize is the size in bytes of this type's public sub-record.
	PublicSize int
	// CriticalSize is the size in bytes of this type's critical sub-record
	// (the sum of its critical attributes' sizes; every master holds a
	// replica of this sub-record for every agent, per I3).
	CriticalSize int
	// Sendable marks whether instances of this type may migrate between
	// masters (NonSendableAgentTypes in the meta-evolution stub). It
	// defaults to true and is changed only by SetSendable; nothing in the
	// runtime reads it.
	Sendable bool
}

// Attribute looks up an attribute descriptor by name.
func (l *AgentTypeLayout) Attribute(name string) (AttributeDescriptor, bool) {
	idx, ok := l.byName[name]
	if !ok {
		return AttributeDescriptor{}, false
	}
	return l.Attrs[idx], true
}

// CriticalAttributes returns the descriptors of this type's critical
// attributes, in offset order.
func (l *AgentTypeLayout) CriticalAttributes() []AttributeDescriptor {
	out := make([]AttributeDescriptor, 0, len(l.Attrs))
	for _, a := range l.Attrs {
		if a.Visibility == Critical {
			out = append(out, a)
		}
	}
	return out
}

// PublicAttributes returns the descriptors of this type's public
// attributes, in offset order.
func (l *AgentTypeLayout) PublicAttributes() []AttributeDescriptor {
	out := make([]AttributeDescriptor, 0, len(l.Attrs))
	for _, a := range l.Attrs {
		if a.Visibility == Public {
			out = append(out, a)
		}
	}
	return out
}

// InteractionFieldDescriptor describes one field of an interaction payload.
type InteractionFieldDescriptor struct {
	Name   string
	Codec  Codec
	Offset int
}

// InteractionTypeLayout is the frozen wire descriptor for one interaction
// type.
type InteractionTypeLayout struct {
	Name    string
	ID      InteractionType
	Fields  []InteractionFieldDescriptor
	Size    int
	Factory InteractionFactory
}

// AgentFactory constructs a zero-value agent record for a given global id.
// Catalog-indexed construction replaces the subclass hierarchy of the
// original design: the concrete record layout per type is data (the
// AgentTypeLayout), not code.
type AgentFactory func(id GlobalID) any

// InteractionFactory constructs a zero-value interaction payload.
type InteractionFactory func() any

// Catalog is the frozen, read-only layout table built by Builder.Build.
// It is safe for concurrent use by every master and handler goroutine.
type Catalog struct {
	nbTypes      uint64
	agentsByID   map[AgentType]*AgentTypeLayout
	agentsByName map[string]*AgentTypeLayout
	interactions     map[InteractionType]*InteractionTypeLayout
	typeOrder        []AgentType
	interactionOrder []InteractionType
}

// NbTypes returns T, the number of registered agent types (used in the
// GlobalID = LocalID*T + TypeID formula, I1).
func (c *Catalog) NbTypes() uint64 { return c.nbTypes }

// AgentType looks up a type's frozen layout by id.
func (c *Catalog) AgentType(t AgentType) (*AgentTypeLayout, bool) {
	l, ok := c.agentsByID[t]
	return l, ok
}

// AgentTypeByName looks up a type's frozen layout by name.
func (c *Catalog) AgentTypeByName(name string) (*AgentTypeLayout, bool) {
	l, ok := c.agentsByName[name]
	return l, ok
}

// InteractionType looks up an interaction type's frozen layout by id.
func (c *Catalog) InteractionType(t InteractionType) (*InteractionTypeLayout, bool) {
	l, ok := c.interactions[t]
	return l, ok
}

// AgentTypes returns every registered type id, in ascending order.
func (c *Catalog) AgentTypes() []AgentType {
	out := make([]AgentType, len(c.typeOrder))
	copy(out, c.typeOrder)
	return out
}

// InteractionTypes returns every registered interaction type id, in
// ascending order, for callers that must walk every possible inbox
// bucket (internal/master's Distribute phase).
func (c *Catalog) InteractionTypes() []InteractionType {
	out := make([]InteractionType, len(c.interactionOrder))
	copy(out, c.interactionOrder)
	return out
}

// GlobalID computes the global id for a local id of the given type.
func (c *Catalog) GlobalID(local AgentID, typ AgentType) GlobalID {
	return ToGlobalID(local, typ, c.nbTypes)
}

// SplitGlobalID recovers (local id, type) from a global id.
func (c *Catalog) SplitGlobalID(g GlobalID) (AgentID, AgentType) {
	return SplitGlobalID(g, c.nbTypes)
}

// Builder accumulates agent type, attribute, and interaction type
// registrations and freezes them into a Catalog on Build. It replaces the
// precompilation toolchain's code-generation hook with a plain Go API call
// sequence: register everything, then Build once, before any master is
// constructed.
type Builder struct {
	mu           sync.Mutex
	built        bool
	agents       map[AgentType]*pendingAgentType
	agentOrder   []AgentType
	interactions map[InteractionType]*pendingInteraction
}

type pendingAgentType struct {
	name     string
	id       AgentType
	attrs    []AttributeDescriptor
	seen     map[Attribute]bool
	factory  AgentFactory
	sendable bool
}

type pendingInteraction struct {
	name   string
	id     InteractionType
	fields []InteractionFieldDescriptor
	factory InteractionFactory
}

// NewBuilder creates an empty catalog builder.
func NewBuilder() *Builder {
	return &Builder{
		agents:       make(map[AgentType]*pendingAgentType),
		interactions: make(map[InteractionType]*pendingInteraction),
	}
}

// RegisterAgentType registers a new agent type. factory constructs a
// zero-value record for instances of this type; it may be nil if the
// caller only needs layout information (e.g. in tests).
func (b *Builder) RegisterAgentType(name string, id AgentType, factory AgentFactory) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return ErrAlreadyBuilt
	}
	if _, exists := b.agents[id]; exists {
		return &BuildError{Name: name, Err: ErrDuplicateAgentType}
	}

	b.agents[id] = &pendingAgentType{
		name:     name,
		id:       id,
		seen:     make(map[Attribute]bool),
		factory:  factory,
		sendable: true,
	}
	b.agentOrder = append(b.agentOrder, id)
	return nil
}

// SetSendable overrides the sendability of an agent type (defaults to
// true). This is a pass-through flag only: no interaction routing or
// migration code checks it (meta-evolution is explicitly out of scope).
func (b *Builder) SetSendable(typ AgentType, sendable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return ErrAlreadyBuilt
	}
	p, ok := b.agents[typ]
	if !ok {
		return &BuildError{Name: fmt.Sprintf("type %d", typ), Err: ErrUnknownAgentType}
	}
	p.sendable = sendable
	return nil
}

// RegisterAttribute registers an attribute on a previously registered agent
// type. Offsets are computed deterministically at Build time from
// registration order within each visibility class, so every master that
// registers attributes in the same order computes identical offsets (P5).
func (b *Builder) RegisterAttribute(typ AgentType, name string, id Attribute, vis Visibility, codec Codec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return ErrAlreadyBuilt
	}
	p, ok := b.agents[typ]
	if !ok {
		return &BuildError{Name: name, Err: ErrUnknownAgentType}
	}
	if p.seen[id] {
		return &BuildError{Name: name, Err: ErrDuplicateAttribute}
	}
	p.seen[id] = true
	p.attrs = append(p.attrs, AttributeDescriptor{
		Name:       name,
		ID:         id,
		Visibility: vis,
		Codec:      codec,
	})
	return nil
}

// RegisterInteractionType registers a typed interaction payload with its
// ordered field codecs.
func (b *Builder) RegisterInteractionType(name string, id InteractionType, factory InteractionFactory, fields ...InteractionFieldDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return ErrAlreadyBuilt
	}
	if _, exists := b.interactions[id]; exists {
		return &BuildError{Name: name, Err: ErrDuplicateInteractionType}
	}

	fs := make([]InteractionFieldDescriptor, len(fields))
	copy(fs, fields)
	b.interactions[id] = &pendingInteraction{
		name:    name,
		id:      id,
		fields:  fs,
		factory: factory,
	}
	return nil
}

// Build freezes the catalog: computes every attribute's offset within its
// agent type's public/critical sub-record and every interaction field's
// offset, then returns the immutable Catalog. Build may be called only
// once per Builder.
func (b *Builder) Build() (*Catalog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return nil, ErrAlreadyBuilt
	}
	b.built = true

	sortedTypes := make([]AgentType, len(b.agentOrder))
	copy(sortedTypes, b.agentOrder)
	sort.Slice(sortedTypes, func(i, j int) bool { return sortedTypes[i] < sortedTypes[j] })

	cat := &Catalog{
		nbTypes:      uint64(len(sortedTypes)),
		agentsByID:   make(map[AgentType]*AgentTypeLayout, len(sortedTypes)),
		agentsByName: make(map[string]*AgentTypeLayout, len(sortedTypes)),
		interactions: make(map[InteractionType]*InteractionTypeLayout, len(b.interactions)),
		typeOrder:    sortedTypes,
	}

	for _, typ := range sortedTypes {
		p := b.agents[typ]

		// Stable registration order determines offset order within each
		// visibility class (I4: public and critical offsets independent).
		attrs := make([]AttributeDescriptor, len(p.attrs))
		copy(attrs, p.attrs)

		var publicOff, criticalOff int
		byName := make(map[string]int, len(attrs))
		for i := range attrs {
			a := &attrs[i]
			switch a.Visibility {
			case Public:
				a.Offset = publicOff
				publicOff += a.Codec.Size()
			case Critical:
				a.Offset = criticalOff
				criticalOff += a.Codec.Size()
			default:
				a.Offset = -1
			}
			byName[a.Name] = i
		}

		cat.agentsByID[typ] = &AgentTypeLayout{
			Name:         p.name,
			ID:           typ,
			Attrs:        attrs,
			byName:       byName,
			Factory:      p.factory,
			PublicSize:   publicOff,
			CriticalSize: criticalOff,
			Sendable:     p.sendable,
		}
		cat.agentsByName[p.name] = cat.agentsByID[typ]
	}

	for id, p := range b.interactions {
		fields := make([]InteractionFieldDescriptor, len(p.fields))
		copy(fields, p.fields)
		var off int
		for i := range fields {
			fields[i].Offset = off
			off += fields[i].Codec.Size()
		}
		cat.interactions[id] = &InteractionTypeLayout{
			Name:    p.name,
			ID:      id,
			Fields:  fields,
			Size:    off,
			Factory: p.factory,
		}
		cat.interactionOrder = append(cat.interactionOrder, id)
	}
	sort.Slice(cat.interactionOrder, func(i, j int) bool { return cat.interactionOrder[i] < cat.interactionOrder[j] })

	return cat, nil
}
