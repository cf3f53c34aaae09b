package interaction

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
	metrics "github.com/swarmstep/swarmstep/pkg/observability"
)

// PeerDialer resolves a master id to its PeerService stub. Defined locally
// (rather than imported from internal/cluster) so interaction has no
// dependency on the cluster package; internal/cluster.Cluster satisfies
// it directly.
type PeerDialer interface {
	Peer(catalog.MasterID) (wire.PeerServiceClient, error)
}

// LocalExistsFunc reports whether a global id is currently a locally
// owned agent, used to implement drop-on-missing-recipient on delivery
// (B3).
type LocalExistsFunc func(catalog.GlobalID) bool

// Delivered is one interaction received this step, ready for a behavior
// to consume.
type Delivered struct {
	Sender catalog.GlobalID
	To     catalog.GlobalID
	Payload []byte
}

// Router drives the three-phase per-step interaction exchange: an
// all-to-all count announcement, then a batched point-to-point transfer,
// delivering into per-type inboxes that local behaviors read during
// RunBehaviors.
type Router struct {
	self  catalog.MasterID
	peers PeerDialer

	mu    sync.Mutex
	inbox map[catalog.InteractionType][]Delivered

	droppedSent     int64
	droppedReceived int64
}

// NewRouter creates a Router for the given master.
func NewRouter(self catalog.MasterID, peers PeerDialer) *Router {
	return &Router{
		self:  self,
		peers: peers,
		inbox: make(map[catalog.InteractionType][]Delivered),
	}
}

// Exchange performs the full three-phase protocol for one step: it
// announces outgoing counts to every destination master, then transfers
// the batched payloads. Both phases are synchronous gRPC calls, so the
// sequencing of count-then-transfer is enforced without a separate
// barrier.
func (r *Router) Exchange(ctx context.Context, step catalog.Time, out *Outbox) error {
	snapshot := out.Snapshot()

	for masterID, byType := range snapshot {
		client, err := r.peers.Peer(masterID)
		if err != nil {
			return fmt.Errorf("interaction: resolve master %d: %w", masterID, err)
		}

		counts := make([]wire.InteractionCount, 0, len(byType))
		for typ, entries := range byType {
			counts = append(counts, wire.InteractionCount{Type: typ, Count: int32(len(entries))})
		}
		if _, err := client.ExchangeCounts(ctx, &wire.ExchangeCountsRequest{
			From:   r.self,
			Step:   step,
			Counts: counts,
		}); err != nil {
			return fmt.Errorf("interaction: exchange counts with master %d: %w", masterID, err)
		}
	}

	for masterID, byType := range snapshot {
		client, err := r.peers.Peer(masterID)
		if err != nil {
			return fmt.Errorf("interaction: resolve master %d: %w", masterID, err)
		}

		for typ, entries := range byType {
			senders := make([]catalog.GlobalID, len(entries))
			recipients := make([]catalog.GlobalID, len(entries))
			var payloads []byte
			for i, e := range entries {
				senders[i] = e.Sender
				recipients[i] = e.Recipient
				payloads = append(payloads, e.Payload...)
			}

			if _, err := client.DeliverInteractions(ctx, &wire.DeliverInteractionsRequest{
				From:       r.self,
				Step:       step,
				Type:       typ,
				Senders:    senders,
				Recipients: recipients,
				Payloads:   payloads,
			}); err != nil {
				return fmt.Errorf("interaction: deliver to master %d: %w", masterID, err)
			}
			metrics.RecordInteractionSent(int32(r.self), int32(masterID), strconv.FormatUint(uint64(typ), 10), len(entries))
		}
	}

	atomic.AddInt64(&r.droppedSent, out.Dropped())
	return nil
}

// Deliver handles an incoming DeliverInteractions RPC: it splits the
// concatenated payload buffer back into per-recipient records (each
// exactly payloadSize bytes, as given by the interaction type's frozen
// wire descriptor) and appends every one whose recipient still exists
// locally to this step's inbox. Recipients that no longer exist locally
// are dropped and counted (B3) rather than erroring the whole batch.
func (r *Router) Deliver(from catalog.MasterID, typ catalog.InteractionType, senders, recipients []catalog.GlobalID, payloads []byte, payloadSize int, exists LocalExistsFunc) (dropped int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, recipient := range recipients {
		start := i * payloadSize
		end := start + payloadSize
		if end > len(payloads) {
			break
		}
		if !exists(recipient) {
			dropped++
			continue
		}
		buf := make([]byte, payloadSize)
		copy(buf, payloads[start:end])
		var sender catalog.GlobalID
		if i < len(senders) {
			sender = senders[i]
		}
		r.inbox[typ] = append(r.inbox[typ], Delivered{Sender: sender, To: recipient, Payload: buf})
	}

	if delivered := len(recipients) - int(dropped); delivered > 0 {
		metrics.RecordInteractionDelivered(int32(r.self), strconv.FormatUint(uint64(typ), 10), delivered)
	}
	atomic.AddInt64(&r.droppedReceived, int64(dropped))
	return dropped
}

// Inbox returns the interactions of the given type delivered this step.
func (r *Router) Inbox(typ catalog.InteractionType) []Delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivered, len(r.inbox[typ]))
	copy(out, r.inbox[typ])
	return out
}

// Reset clears the inbox for the next step. Dropped counters are
// cumulative metrics and are not reset.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox = make(map[catalog.InteractionType][]Delivered)
}

// DroppedSent reports the cumulative count of interactions dropped
// because their recipient's owner could not be resolved at send time
// (I6).
func (r *Router) DroppedSent() int64 {
	return atomic.LoadInt64(&r.droppedSent)
}

// DroppedReceived reports the cumulative count of interactions dropped
// because their recipient no longer existed locally at delivery time
// (B3).
func (r *Router) DroppedReceived() int64 {
	return atomic.LoadInt64(&r.droppedReceived)
}
