package agent

import (
	"context"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/interaction"
	"github.com/swarmstep/swarmstep/internal/window"
)

// Env is the per-step handle Behavior uses to reach outside its own
// record: fetching another agent's public attributes (one-sided RMA-style,
// through the per-step cache), reading the critical window replica, and
// queuing outgoing interactions. One Env is built per Behavior call, since
// Self differs per agent; the Public, Critical and Outbox it points to are
// shared by every concurrently running call and are each safe for
// concurrent use on their own.
type Env struct {
	Self   catalog.GlobalID
	Step   catalog.Time
	Master catalog.MasterID

	Public   *window.Public
	Critical *window.Critical
	Outbox   *interaction.Outbox
	Owner    interaction.OwnerFunc
}

// FetchPublic reads another agent's public sub-record, satisfied locally
// if owner(id) is this master, or through one cached RMA-equivalent fetch
// per (id) per step otherwise (P4).
func (e *Env) FetchPublic(ctx context.Context, id catalog.GlobalID) ([]byte, error) {
	return e.Public.Fetch(ctx, id)
}

// GetCritical reads an agent's last-published critical sub-record from
// this master's full replica (I3). Never errors: a not-yet-installed
// agent simply reports found=false.
func (e *Env) GetCritical(id catalog.GlobalID) ([]byte, bool) {
	return e.Critical.Get(id)
}

// Send queues an outgoing interaction from this agent. It is exchanged
// between masters during the next step and handed to the recipient's
// ReceiveMessage at the start of the step after that. Recipients whose
// owner cannot be resolved are dropped with a logged warning and counted
// (I6).
func (e *Env) Send(recipient catalog.GlobalID, typ catalog.InteractionType, payload []byte) {
	e.Outbox.Send(e.Owner, e.Self, recipient, typ, payload)
}
