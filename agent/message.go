package agent

import (
	"fmt"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/interaction"
)

// Message is one interaction delivered to an agent's ReceiveMessage this
// step, after the router split a peer's batched transfer back into
// per-recipient records (B3).
type Message struct {
	// Type identifies which interaction type this is, per the catalog's
	// registered interaction types.
	Type catalog.InteractionType

	// Sender is the global id of the agent that queued this interaction.
	Sender catalog.GlobalID

	// Payload is the interaction's encoded fields, exactly the bytes the
	// catalog's field codecs produced, ready to be decoded with the same
	// InteractionTypeLayout the sender used to encode it.
	Payload []byte
}

// FromDelivered wraps one of a step's router.Inbox(typ) entries as a
// Message ready for ReceiveMessage.
func FromDelivered(typ catalog.InteractionType, d interaction.Delivered) *Message {
	return &Message{Type: typ, Sender: d.Sender, Payload: d.Payload}
}

// String returns a human-readable representation for debugging.
func (m *Message) String() string {
	return fmt.Sprintf("Message{Type:%d, Sender:%d, len(Payload):%d}", m.Type, m.Sender, len(m.Payload))
}
