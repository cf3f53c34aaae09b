package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/swarmstep/swarmstep/internal/wire"
	metrics "github.com/swarmstep/swarmstep/pkg/observability"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

// command is one opcode HandleOpcode has accepted, queued for Wait's
// loop to actually dispatch.
type command struct {
	op      wire.Opcode
	payload []byte
}

// Follower is the non-coordinator control-plane role (§4.7): it
// implements master.ControlSink, so a Master's ControlOpcode RPC
// handler forwards straight into HandleOpcode, which only enqueues —
// the actual dispatch (running steps, adopting a new period, writing an
// attribute) happens on Wait's own goroutine, never inside the
// originating RPC call. This matters because OpRun's dispatch calls
// RunTimeStep, which blocks on cluster-wide Synchronize barriers the
// coordinator is concurrently waiting on from its own Run call; running
// it inline in the RPC handler would deadlock the RPC against the
// barrier it's itself part of.
type Follower struct {
	runner Runner
	period int
	cmds   chan command
}

// NewFollower creates a Follower with the default period of 1 step per
// RUN unit and a small command queue (control-plane opcodes are
// infrequent and strictly ordered by the coordinator's own broadcast
// loop, so no more than one or two should ever be in flight).
func NewFollower(runner Runner) *Follower {
	return &Follower{runner: runner, period: 1, cmds: make(chan command, 4)}
}

// HandleOpcode implements master.ControlSink: it enqueues the opcode for
// Wait to dispatch and returns immediately.
func (f *Follower) HandleOpcode(ctx context.Context, op wire.Opcode, payload []byte) error {
	select {
	case f.cmds <- command{op: op, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait parks until an opcode arrives, dispatches it, and re-enters the
// loop — except for KILL, which returns nil instead of looping again
// (§4.7, §5 Cancellation: KILL is observed only at this phase boundary,
// never mid-dispatch).
func (f *Follower) Wait(ctx context.Context) error {
	for {
		select {
		case cmd := <-f.cmds:
			done, err := f.dispatch(ctx, cmd)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Follower) dispatch(ctx context.Context, cmd command) (kill bool, err error) {
	metrics.RecordControlOpcode(int32(f.runner.Self()), cmd.op.String())

	switch cmd.op {
	case wire.OpIdle:
		return false, nil

	case wire.OpChangePeriod:
		var p changePeriodPayload
		if err := decode(cmd.payload, &p); err != nil {
			return false, fmt.Errorf("control: decode CHANGE_PERIOD: %w", err)
		}
		f.period = p.Period
		return false, nil

	case wire.OpRun:
		var p runPayload
		if err := decode(cmd.payload, &p); err != nil {
			return false, fmt.Errorf("control: decode RUN: %w", err)
		}
		for i := 0; i < p.Steps; i++ {
			if err := f.runner.RunTimeStep(ctx); err != nil {
				return false, fmt.Errorf("control: follower step: %w", err)
			}
		}
		return false, nil

	case wire.OpModifyAttribute:
		var p modifyAttributePayload
		if err := decode(cmd.payload, &p); err != nil {
			return false, fmt.Errorf("control: decode MODIFY_ATTRIBUTE: %w", err)
		}
		if err := applyModifyAttribute(f.runner.Registry(), p.Agent, p.Attr, p.Value); err != nil {
			return false, fmt.Errorf("control: apply MODIFY_ATTRIBUTE: %w", err)
		}
		return false, nil

	case wire.OpInit:
		var p initPayload
		if err := decode(cmd.payload, &p); err != nil {
			return false, fmt.Errorf("control: decode INIT: %w", err)
		}
		var doc snapshot.InitDocument
		if err := json.Unmarshal(p.Data, &doc); err != nil {
			return false, fmt.Errorf("control: unmarshal INIT document: %w", err)
		}
		if err := f.runner.ConstructPopulation(&doc); err != nil {
			return false, fmt.Errorf("control: construct population: %w", err)
		}
		return false, nil

	case wire.OpAddAgents:
		// Bulk insertion is an explicit stub (Open Question, see
		// DESIGN.md): the wire format for a batch of agent records
		// riding a control opcode payload was left undefined upstream.
		return false, nil

	case wire.OpExportSimulation:
		// No local action: GatherExport answers pull requests from the
		// coordinator on demand, via the Master's installed ExportSink.
		return false, nil

	case wire.OpKill:
		return true, nil

	default:
		return false, fmt.Errorf("control: unknown opcode %d", cmd.op)
	}
}
