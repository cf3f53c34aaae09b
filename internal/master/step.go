package master

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	publicAgent "github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/observability"
	metrics "github.com/swarmstep/swarmstep/pkg/observability"
)

// RunTimeStep executes one full step of the fixed five-phase pipeline
// (§4.6):
//
//	Synchronize -> Distribute(inbox) -> Synchronize ->
//	PublishAttributes -> Synchronize -> ExchangeInteractions ->
//	Synchronize -> RunBehaviors -> Synchronize
//
// Phase order is invariant and enforced by construction: RunTimeStep is
// not reentrant (a second call must wait for the first to return) and
// exposes no API to run phases out of order or skip a Synchronize. The
// schedule is pipelined across steps rather than confined to one: the
// interactions Distribute delivers this step were exchanged during the
// PREVIOUS step's ExchangeInteractions, which in turn shipped the
// outbox RunBehaviors queued the step before that.
func (m *Master) RunTimeStep(ctx context.Context) (err error) {
	step := m.Step()
	stepStart := time.Now()

	ctx, span := observability.StartSpanWithOtel(ctx, "master.RunTimeStep",
		trace.WithAttributes(
			attribute.Int64("swarmstep.step", int64(step)),
			attribute.Int64("swarmstep.master", int64(m.self)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		metrics.RecordStep(int32(m.self), time.Since(stepStart))
	}()

	phaseStart := time.Now()
	if err := m.Synchronize(ctx, step, "step-start"); err != nil {
		return fmt.Errorf("master: step %d start barrier: %w", step, err)
	}
	metrics.RecordBarrierWait(int32(m.self), "step-start", time.Since(phaseStart))

	phaseStart = time.Now()
	m.distribute()
	metrics.RecordPhase(int32(m.self), "distribute", time.Since(phaseStart))
	if err := m.Synchronize(ctx, step, "distribute"); err != nil {
		return fmt.Errorf("master: step %d distribute barrier: %w", step, err)
	}

	phaseStart = time.Now()
	if err := m.publishAttributes(ctx, step); err != nil {
		return fmt.Errorf("master: step %d publish: %w", step, err)
	}
	metrics.RecordPhase(int32(m.self), "publish", time.Since(phaseStart))
	if err := m.Synchronize(ctx, step, "publish"); err != nil {
		return fmt.Errorf("master: step %d publish barrier: %w", step, err)
	}

	if err := m.public.BeginReadEpoch(); err != nil {
		return fmt.Errorf("master: step %d open read epoch: %w", step, err)
	}

	phaseStart = time.Now()
	if err := m.exchangeInteractions(ctx, step); err != nil {
		return fmt.Errorf("master: step %d exchange: %w", step, err)
	}
	metrics.RecordPhase(int32(m.self), "exchange", time.Since(phaseStart))
	if err := m.Synchronize(ctx, step, "exchange"); err != nil {
		return fmt.Errorf("master: step %d exchange barrier: %w", step, err)
	}

	phaseStart = time.Now()
	if err := m.runBehaviors(ctx, step); err != nil {
		return fmt.Errorf("master: step %d behaviors: %w", step, err)
	}
	metrics.RecordPhase(int32(m.self), "behaviors", time.Since(phaseStart))
	if err := m.Synchronize(ctx, step, "behaviors"); err != nil {
		return fmt.Errorf("master: step %d behaviors barrier: %w", step, err)
	}

	if err := m.public.EndReadEpoch(); err != nil {
		return fmt.Errorf("master: step %d close read epoch: %w", step, err)
	}

	metrics.SetAgentsOwned(int32(m.self), len(m.registry.IDs()))
	atomic.AddUint64(&m.curStep, 1)
	return nil
}

// distribute delivers every interaction this master received via
// DeliverInteractions during the previous step's ExchangeInteractions to
// its recipient's ReceiveMessage, then clears the router's inbox so the
// next ExchangeInteractions starts from empty.
func (m *Master) distribute() {
	for _, typ := range m.cat.InteractionTypes() {
		for _, d := range m.router.Inbox(typ) {
			a, ok := m.registry.Get(d.To)
			if !ok {
				continue
			}
			a.ReceiveMessage(publicAgent.FromDelivered(typ, d))
		}
	}
	m.router.Reset()
}

// publishAttributes copies every locally owned agent's current public
// sub-record into the public window, and — only for agents whose
// critical sub-record changed since the last publish (B4) — stages the
// new critical sub-record, then applies the staged batch, which installs
// it locally and broadcasts it to every peer (I3).
func (m *Master) publishAttributes(ctx context.Context, step catalog.Time) error {
	if err := m.public.BeginWriteEpoch(); err != nil {
		return err
	}
	if err := m.critical.BeginWriteEpoch(); err != nil {
		return err
	}

	for _, id := range m.registry.IDs() {
		a, ok := m.registry.Get(id)
		if !ok {
			continue
		}

		_, typ := m.cat.SplitGlobalID(id)
		layout, ok := m.cat.AgentType(typ)
		if !ok {
			continue
		}

		if layout.PublicSize > 0 {
			buf := make([]byte, layout.PublicSize)
			n := a.CopyPublic(buf)
			if err := m.public.Publish(id, buf[:n]); err != nil {
				return fmt.Errorf("publish agent %d: %w", id, err)
			}
		}

		if layout.CriticalSize > 0 && a.CheckModifiedCritical() {
			buf := make([]byte, layout.CriticalSize)
			n := a.CopyCritical(buf)
			if err := m.critical.Stage(id, buf[:n]); err != nil {
				return fmt.Errorf("stage critical for agent %d: %w", id, err)
			}
		}
	}

	if err := m.public.EndWriteEpoch(); err != nil {
		return err
	}
	if err := m.critical.EndWriteEpoch(); err != nil {
		return err
	}

	return m.critical.Apply(ctx, step)
}

// exchangeInteractions ships the outbox RunBehaviors queued last step to
// every destination master (§4.5's count-then-transfer protocol), then
// clears it: this step's RunBehaviors will queue a fresh batch for the
// next step to exchange.
func (m *Master) exchangeInteractions(ctx context.Context, step catalog.Time) error {
	if err := m.router.Exchange(ctx, step, m.outbox); err != nil {
		return err
	}
	m.outbox.Reset()
	return nil
}

// runBehaviors invokes every locally owned agent's Behavior once,
// fanned out across the handler pool's worker groups (§4.4). Each
// invocation gets its own Env sharing the master's windows, outbox and
// ownership resolver. A Behavior that returns an error or panics is
// logged and the step continues; only cancellation of ctx fails it.
func (m *Master) runBehaviors(ctx context.Context, step catalog.Time) error {
	ids := m.registry.IDs()
	return m.pool.Run(ctx, ids, func(ctx context.Context, id catalog.GlobalID) (err error) {
		a, ok := m.registry.Get(id)
		if !ok {
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panicked: %v", r)
			}
			if err != nil {
				log.Printf("[master %d] step %d: agent %d behavior: %v", m.self, step, id, err)
				err = nil
			}
		}()
		env := &publicAgent.Env{
			Self:     id,
			Step:     step,
			Master:   m.self,
			Public:   m.public,
			Critical: m.critical,
			Outbox:   m.outbox,
			Owner:    m.table.Owner,
		}

		start := time.Now()
		err = a.Behavior(ctx, env)
		_, typ := m.cat.SplitGlobalID(id)
		if layout, ok := m.cat.AgentType(typ); ok {
			metrics.RecordBehavior(int32(m.self), layout.Name, time.Since(start))
		}
		return err
	})
}
