package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/graph"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

// PeerDialer resolves a master id to its PeerService stub and lists
// every peer master. Defined locally, as in the other internal
// packages, so control does not depend on internal/cluster's concrete
// type.
type PeerDialer interface {
	Peer(catalog.MasterID) (wire.PeerServiceClient, error)
	Masters() []catalog.MasterID
}

// Runner is the subset of *master.Master the control plane drives
// directly: advancing steps, answering a local GatherExport without a
// loopback RPC, and resolving local ownership for MODIFY_ATTRIBUTE.
// internal/master.Master satisfies this.
type Runner interface {
	Self() catalog.MasterID
	Registry() agent.Registry
	RunTimeStep(ctx context.Context) error
	GatherExport(ctx context.Context, req *wire.GatherExportRequest) (*wire.GatherExportResponse, error)

	// Catalog, AssignPartition and ConstructPopulation back INIT (§4.8):
	// looking up an agent type's id, computing+installing its round-robin
	// ownership, and building every locally-owned agent from an
	// InitDocument.
	Catalog() *catalog.Catalog
	AssignPartition(ctx context.Context, typ catalog.AgentType, total uint64) error
	ConstructPopulation(doc *snapshot.InitDocument) error
}

// Coordinator is the master-0 control-plane role: every public method
// broadcasts its opcode to every follower, then performs the same
// operation on its own master directly (never through a loopback RPC),
// and returns once its own share of the work is done — it does not wait
// for followers to finish running their steps, since RunTimeStep's own
// Synchronize barriers already provide that rendezvous cluster-wide.
type Coordinator struct {
	mu     sync.Mutex
	period int

	self  Runner
	peers PeerDialer
}

// NewCoordinator creates a Coordinator with the default period of 1
// step per RUN unit.
func NewCoordinator(self Runner, peers PeerDialer) *Coordinator {
	return &Coordinator{period: 1, self: self, peers: peers}
}

// ChangePeriod broadcasts a new period length (§4.7 CHANGE_PERIOD),
// then adopts it locally.
func (c *Coordinator) ChangePeriod(ctx context.Context, period int) error {
	if period < 1 {
		return fmt.Errorf("control: period must be >= 1, got %d", period)
	}
	if err := c.broadcast(ctx, wire.OpChangePeriod, encode(changePeriodPayload{Period: period})); err != nil {
		return err
	}
	c.mu.Lock()
	c.period = period
	c.mu.Unlock()
	return nil
}

// Run broadcasts RUN for n period-lengths (R2: advances exactly
// period×n steps cluster-wide), then advances this master's own n×
// period steps in the calling goroutine.
func (c *Coordinator) Run(ctx context.Context, n int) error {
	c.mu.Lock()
	steps := c.period * n
	c.mu.Unlock()

	if err := c.broadcast(ctx, wire.OpRun, encode(runPayload{Steps: steps})); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := c.self.RunTimeStep(ctx); err != nil {
			return fmt.Errorf("control: coordinator step: %w", err)
		}
	}
	return nil
}

// ModifyAttribute broadcasts a (global_id, attribute_id, value) triple;
// the follower that owns id commits it, every other follower (and the
// coordinator itself, if it is not the owner) ignores it.
func (c *Coordinator) ModifyAttribute(ctx context.Context, id catalog.GlobalID, attr catalog.Attribute, value []byte) error {
	payload := encode(modifyAttributePayload{Agent: id, Attr: attr, Value: value})
	if err := c.broadcast(ctx, wire.OpModifyAttribute, payload); err != nil {
		return err
	}
	return applyModifyAttribute(c.self.Registry(), id, attr, value)
}

// Idle broadcasts a no-op opcode (useful as a liveness probe of the
// control fabric).
func (c *Coordinator) Idle(ctx context.Context) error {
	return c.broadcast(ctx, wire.OpIdle, nil)
}

// Kill broadcasts KILL, terminating every follower's Wait loop.
func (c *Coordinator) Kill(ctx context.Context) error {
	return c.broadcast(ctx, wire.OpKill, nil)
}

// ExportSimulation broadcasts EXPORT_SIMULATION, then gathers every
// master's serialized local agents (including its own, fetched
// in-process rather than by looping back over gRPC) keyed by master id.
// pkg/snapshot assembles the gathered parts into one Document.
func (c *Coordinator) ExportSimulation(ctx context.Context, step catalog.Time) (map[catalog.MasterID][]byte, error) {
	if err := c.broadcast(ctx, wire.OpExportSimulation, nil); err != nil {
		return nil, err
	}

	out := make(map[catalog.MasterID][]byte)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range c.peers.Masters() {
		id := id
		g.Go(func() error {
			client, err := c.peers.Peer(id)
			if err != nil {
				return fmt.Errorf("control: resolve master %d: %w", id, err)
			}
			resp, err := client.GatherExport(gctx, &wire.GatherExportRequest{Step: step})
			if err != nil {
				return fmt.Errorf("control: gather export from master %d: %w", id, err)
			}
			mu.Lock()
			out[id] = resp.Data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	selfResp, err := c.self.GatherExport(ctx, &wire.GatherExportRequest{Step: step})
	if err != nil {
		return nil, fmt.Errorf("control: gather own export: %w", err)
	}
	out[c.self.Self()] = selfResp.Data

	return out, nil
}

// InitPopulation decodes an init document (§4.8) and assigns round-robin
// ownership for every agent type it names, in dependency order — a type
// naming DependsOn (e.g. a predator population whose initial interactions
// target specific prey global ids) is only assigned after everything it
// depends on, so ConstructPopulation can resolve cross-type references.
// Types with no declared dependency relationship to each other share a
// level and are assigned in ascending order of type name. Every
// assignment is installed on every master before InitPopulation moves on,
// so ConstructPopulation never races an incomplete Table. It then
// broadcasts the raw document to every follower and constructs this
// master's own share directly.
func (c *Coordinator) InitPopulation(ctx context.Context, data []byte) error {
	var doc snapshot.InitDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("control: decode init document: %w", err)
	}

	byType := make(map[string]snapshot.AgentTypeInit, len(doc.AgentTypes))
	g := graph.NewDependencyGraph()
	for _, at := range doc.AgentTypes {
		byType[at.Type] = at
		g.AddNode(at.Type, at.DependsOn)
	}
	levels, err := g.TopologicalLevels()
	if err != nil {
		return fmt.Errorf("control: init: agent type dependencies: %w", err)
	}

	for _, level := range levels {
		for _, name := range level {
			at := byType[name]
			layout, ok := c.self.Catalog().AgentTypeByName(at.Type)
			if !ok {
				return fmt.Errorf("control: init: unknown agent type %q", at.Type)
			}
			if err := c.self.AssignPartition(ctx, layout.ID, uint64(at.Number)); err != nil {
				return fmt.Errorf("control: init: assign %q: %w", at.Type, err)
			}
		}
	}

	if err := c.broadcast(ctx, wire.OpInit, encode(initPayload{Data: data})); err != nil {
		return err
	}
	return c.self.ConstructPopulation(&doc)
}

func (c *Coordinator) broadcast(ctx context.Context, op wire.Opcode, payload []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range c.peers.Masters() {
		id := id
		g.Go(func() error {
			client, err := c.peers.Peer(id)
			if err != nil {
				return fmt.Errorf("control: resolve master %d: %w", id, err)
			}
			_, err = client.ControlOpcode(gctx, &wire.ControlOpcodeRequest{Opcode: op, Payload: payload})
			if err != nil {
				return fmt.Errorf("control: broadcast %s to master %d: %w", op, id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
