// Package interaction implements the per-step exchange of typed
// interaction payloads between masters: an outbox where behaviors queue
// sends, a router that performs the all-to-all count exchange and batched
// point-to-point transfer, and an inbox behaviors read from on the
// receiving side.
package interaction

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// OwnerFunc reports which master currently owns a given global id.
type OwnerFunc func(catalog.GlobalID) (catalog.MasterID, bool)

type batchKey struct {
	Master catalog.MasterID
	Type   catalog.InteractionType
}

// Entry is one queued outgoing interaction.
type Entry struct {
	Sender    catalog.GlobalID
	Recipient catalog.GlobalID
	Payload   []byte
}

// Outbox accumulates interactions queued by local behaviors during
// RunBehaviors, grouped by (recipient master, interaction type) so the
// router can batch the point-to-point transfer phase.
type Outbox struct {
	mu      sync.Mutex
	batches map[batchKey][]Entry
	dropped int64
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{batches: make(map[batchKey][]Entry)}
}

// Send queues an interaction from sender to recipient, looking up the
// recipient's owning master via owner. If the recipient is not known to
// owner at all (never existed, or has since been removed cluster-wide),
// the send is dropped with a logged warning and counted rather than
// erroring the calling behavior (I6).
func (o *Outbox) Send(owner OwnerFunc, sender, recipient catalog.GlobalID, typ catalog.InteractionType, payload []byte) {
	masterID, ok := owner(recipient)
	if !ok {
		atomic.AddInt64(&o.dropped, 1)
		log.Printf("[interaction] warning: recipient %d of interaction type %d from %d not found, dropped", recipient, typ, sender)
		return
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	o.mu.Lock()
	defer o.mu.Unlock()
	key := batchKey{Master: masterID, Type: typ}
	o.batches[key] = append(o.batches[key], Entry{Sender: sender, Recipient: recipient, Payload: buf})
}

// Dropped reports how many sends were dropped because their recipient's
// owner could not be resolved.
func (o *Outbox) Dropped() int64 {
	return atomic.LoadInt64(&o.dropped)
}

// Snapshot returns a copy of the queued batches, keyed by destination
// master, then by interaction type.
func (o *Outbox) Snapshot() map[catalog.MasterID]map[catalog.InteractionType][]Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[catalog.MasterID]map[catalog.InteractionType][]Entry)
	for key, entries := range o.batches {
		byType, ok := out[key.Master]
		if !ok {
			byType = make(map[catalog.InteractionType][]Entry)
			out[key.Master] = byType
		}
		cp := make([]Entry, len(entries))
		copy(cp, entries)
		byType[key.Type] = cp
	}
	return out
}

// Reset clears the outbox for the next step.
func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = make(map[batchKey][]Entry)
}
