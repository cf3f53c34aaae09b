// Package control implements the control plane of §4.7: one master
// (index 0) plays Coordinator, broadcasting opcodes over the same
// PeerService gRPC fabric internal/window uses for RMA; every other
// master runs a Follower, parking in a loop that dispatches on receipt
// and re-enters, except for KILL which exits it.
//
// Grounded on internal/graph.DependencyGraph's level-by-level
// broadcast-then-wait phasing and internal/supervisor.Supervisor's
// coordinator-role shape, generalized from "broadcast one instruction to
// a dependency level" to "broadcast one opcode to every peer master."
package control

import (
	"bytes"
	"encoding/gob"
	"errors"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// ErrInvalidCommand is returned by the CLI front-end's command parser for
// unrecognized or malformed input text (§7); the control plane itself
// never produces it.
var ErrInvalidCommand = errors.New("control: invalid command")

// ErrNotInitialized is returned when a control command is issued before
// `init` has loaded a catalog and partitioned the cluster (§7).
var ErrNotInitialized = errors.New("control: not initialized")

// runPayload is OpRun's broadcast payload: the number of steps to
// advance, already multiplied by the locally-configured period
// (CHANGE_PERIOD) so a follower never needs to know "n" from "run(n)"
// separately from "period" from "set_period(k)" — R2's k×n falls out of
// multiplying before encoding.
type runPayload struct {
	Steps int
}

// changePeriodPayload is CHANGE_PERIOD's broadcast payload.
type changePeriodPayload struct {
	Period int
}

// modifyAttributePayload is MODIFY_ATTRIBUTE's broadcast payload: a
// (global_id, attribute_id, value) triple (§4.7). Every follower
// receives it; only the one that owns Agent commits it (others ignore).
type modifyAttributePayload struct {
	Agent catalog.GlobalID
	Attr  catalog.Attribute
	Value []byte
}

// initPayload is OpInit's broadcast payload: the raw init-document JSON
// bytes the CLI's `init` command read off disk, forwarded verbatim so
// every master decodes it with pkg/snapshot itself rather than trusting a
// re-encoding of the coordinator's own parse.
type initPayload struct {
	Data []byte
}

func encode(v any) []byte {
	var buf bytes.Buffer
	// encode errors only on unsupported types, none of which appear
	// here; gob.NewEncoder never returns an error for these payloads.
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
