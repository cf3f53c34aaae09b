package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

// order is one submitted command, parked on the OrderBus for Dispatcher's
// own goroutine to execute against a Coordinator, with a private channel
// for the result — the same enqueue-now/dispatch-later split Follower
// uses for broadcast opcodes, extended with a reply channel since an
// order's caller (an OrderService RPC, ultimately the CLI) is waiting
// synchronously for one, where a follower's broadcast opcode is not.
type order struct {
	req    *wire.OrderRequest
	result chan orderResult
}

type orderResult struct {
	resp *wire.OrderResponse
	err  error
}

// OrderBus is the buffered channel standing in for the "named
// inter-process queue" of §6: the actual cross-process transport is out
// of scope, so a gRPC OrderService call is the only thing that ever
// writes to one, translating a CLI process's command into a value on
// this in-process channel.
type OrderBus chan order

// NewOrderBus creates an OrderBus. Orders are strictly ordered by the
// single CLI session issuing them, so a small buffer is enough to let a
// command be accepted before the previous one's result has been read.
func NewOrderBus() OrderBus {
	return make(OrderBus, 4)
}

// ThreadPool is the subset of *internal/handler.Pool SET_THREADS needs.
// Defined locally, as the rest of this package does for its peer
// dependencies, so control does not import internal/handler.
type ThreadPool interface {
	SetGroups(n int)
}

// Dispatcher drains an OrderBus on its own goroutine and executes each
// order against a Coordinator, returning the result to the order's
// caller over its private channel. Running the actual work here, rather
// than inline inside the OrderService RPC handler, avoids the same
// deadlock hazard Follower.HandleOpcode/Wait avoids for broadcast
// opcodes: a RUN order's dispatch blocks on the same cluster-wide
// Synchronize barriers the coordinator's own step loop joins, and must
// not run on a goroutine gRPC itself is blocking a response on.
type Dispatcher struct {
	bus   OrderBus
	coord *Coordinator
	pool  ThreadPool
}

// NewDispatcher creates a Dispatcher. pool may be nil, in which case
// SET_THREADS orders are accepted but have no effect.
func NewDispatcher(bus OrderBus, coord *Coordinator, pool ThreadPool) *Dispatcher {
	return &Dispatcher{bus: bus, coord: coord, pool: pool}
}

// Run drains the bus until ctx is canceled or a KILL order is executed,
// mirroring Follower.Wait's own KILL-terminates-the-loop convention.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case o := <-d.bus:
			resp, err := d.execute(ctx, o.req)
			o.result <- orderResult{resp: resp, err: err}
			if o.req.Op == wire.OrderKill {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, req *wire.OrderRequest) (*wire.OrderResponse, error) {
	switch req.Op {
	case wire.OrderChangePeriod:
		if err := d.coord.ChangePeriod(ctx, int(req.Period)); err != nil {
			return nil, err
		}
		return &wire.OrderResponse{}, nil

	case wire.OrderRun:
		if err := d.coord.Run(ctx, int(req.Steps)); err != nil {
			return nil, err
		}
		return &wire.OrderResponse{}, nil

	case wire.OrderSetThreads:
		if d.pool != nil {
			d.pool.SetGroups(int(req.Threads))
		}
		return &wire.OrderResponse{}, nil

	case wire.OrderModifyAttribute:
		if err := d.coord.ModifyAttribute(ctx, req.Agent, req.Attr, req.Value); err != nil {
			return nil, err
		}
		return &wire.OrderResponse{}, nil

	case wire.OrderExportSimulation:
		parts, err := d.coord.ExportSimulation(ctx, req.Step)
		if err != nil {
			return nil, err
		}
		data, err := mergeExportParts(parts)
		if err != nil {
			return nil, err
		}
		return &wire.OrderResponse{Data: data}, nil

	case wire.OrderKill:
		if err := d.coord.Kill(ctx); err != nil {
			return nil, err
		}
		return &wire.OrderResponse{}, nil

	case wire.OrderInit:
		if err := d.coord.InitPopulation(ctx, req.Value); err != nil {
			return nil, err
		}
		return &wire.OrderResponse{}, nil

	default:
		return nil, fmt.Errorf("control: unknown order %s", req.Op)
	}
}

// mergeExportParts assembles the per-master JSON parts ExportSimulation
// gathered into one Document, walking masters in id order so repeated
// exports of an unchanged population are byte-identical.
func mergeExportParts(parts map[catalog.MasterID][]byte) ([]byte, error) {
	ids := make([]catalog.MasterID, 0, len(parts))
	for id := range parts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ordered := make([][]byte, len(ids))
	for i, id := range ids {
		ordered[i] = parts[id]
	}

	doc, err := snapshot.Merge(ordered)
	if err != nil {
		return nil, fmt.Errorf("control: merge export: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("control: marshal merged export: %w", err)
	}
	return data, nil
}

// Server adapts a Dispatcher's bus to wire.OrderServiceServer: Submit
// enqueues the request and blocks on the private result channel, so from
// the CLI's point of view an order completes synchronously even though
// Dispatcher.Run executes it on a separate goroutine.
type Server struct {
	wire.UnimplementedOrderServiceServer
	bus OrderBus
}

// NewServer creates an OrderService gRPC handler bound to bus.
func NewServer(bus OrderBus) *Server {
	return &Server{bus: bus}
}

// Submit implements wire.OrderServiceServer.
func (s *Server) Submit(ctx context.Context, req *wire.OrderRequest) (*wire.OrderResponse, error) {
	result := make(chan orderResult, 1)
	select {
	case s.bus <- order{req: req, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-result:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
