// Package testcluster wires multiple in-process internal/master.Masters
// together over direct Go calls instead of real gRPC listeners, the same
// in-memory bridging internal/master's own test suite (directClient/
// memDialer) and internal/control's test suite (directClient/fakeDialer)
// each reimplement locally. Generalizing it into one shared package lets
// package-level tests exercise a whole multi-master run — partitioning,
// RunTimeStep's phase pipeline, and the control plane together — without
// duplicating the bridge a third time.
package testcluster

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/control"
	"github.com/swarmstep/swarmstep/internal/master"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

// Cluster is N in-process Masters, each reachable from every other
// through a memDialer that calls straight into the target Master's RPC
// methods. Master 0 plays coordinator (per §4.7/§6's process layout);
// every other master runs a control.Follower.
type Cluster struct {
	Masters map[catalog.MasterID]*master.Master

	coordinator *control.Coordinator
	followers   map[catalog.MasterID]*control.Follower
}

// New builds a Cluster of n Masters sharing cat, each with a fresh
// partition table, agent registry, and a pkg/snapshot.Exporter installed
// as its ExportSink. Masters are not Started (no gRPC listener binds);
// RunTimeStep and the control plane are driven directly.
func New(cat *catalog.Catalog, n int, groups int) *Cluster {
	c := &Cluster{
		Masters:   make(map[catalog.MasterID]*master.Master, n),
		followers: make(map[catalog.MasterID]*control.Follower, n-1),
	}

	for i := 0; i < n; i++ {
		id := catalog.MasterID(i)
		dialer := &memDialer{self: id, cluster: c}
		m := master.New(master.Config{
			Self:      id,
			NbMasters: n,
			Catalog:   cat,
			Peers:     dialer,
			Groups:    groups,
		})
		m.SetExportSink(snapshot.NewExporter(cat, m.Registry()))
		c.Masters[id] = m
	}

	for i := 1; i < n; i++ {
		id := catalog.MasterID(i)
		follower := control.NewFollower(c.Masters[id])
		c.Masters[id].SetControlSink(follower)
		c.followers[id] = follower
	}
	coordDialer := &memDialer{self: 0, cluster: c}
	c.coordinator = control.NewCoordinator(c.Masters[0], coordDialer)

	return c
}

// Coordinator returns the control-plane coordinator bound to master 0.
func (c *Cluster) Coordinator() *control.Coordinator { return c.coordinator }

// StartControlPlane launches every follower's Wait loop in its own
// goroutine and returns at once. The returned group's Wait returns once
// every loop has ended (on KILL or ctx cancellation), with the first
// error other than context cancellation.
func (c *Cluster) StartControlPlane(ctx context.Context) *errgroup.Group {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range c.followers {
		f := f
		g.Go(func() error {
			if err := f.Wait(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	return g
}

// RunStep advances every master by exactly one time step concurrently,
// joining on their shared Synchronize barriers (§4.6). Use this for tests
// that drive RunTimeStep directly, bypassing the control plane.
func (c *Cluster) RunStep(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range c.Masters {
		m := m
		g.Go(func() error { return m.RunTimeStep(gctx) })
	}
	return g.Wait()
}

// memDialer wires a fixed set of in-process Masters together, satisfying
// every narrow local PeerDialer interface across internal/window,
// internal/interaction, internal/partition, internal/control, and
// internal/master.
type memDialer struct {
	self    catalog.MasterID
	cluster *Cluster
}

func (d *memDialer) Peer(id catalog.MasterID) (wire.PeerServiceClient, error) {
	target, ok := d.cluster.Masters[id]
	if !ok {
		return nil, fmt.Errorf("testcluster: no master %d", id)
	}
	return &directClient{target: target}, nil
}

func (d *memDialer) Masters() []catalog.MasterID {
	out := make([]catalog.MasterID, 0, len(d.cluster.Masters)-1)
	for id := range d.cluster.Masters {
		if id != d.self {
			out = append(out, id)
		}
	}
	return out
}

// directClient implements wire.PeerServiceClient by calling straight into
// another in-process Master's RPC methods.
type directClient struct {
	target *master.Master
}

func (d *directClient) GetPublic(ctx context.Context, in *wire.GetPublicRequest, _ ...grpc.CallOption) (*wire.GetPublicResponse, error) {
	return d.target.GetPublic(ctx, in)
}
func (d *directClient) PutCritical(ctx context.Context, in *wire.PutCriticalRequest, _ ...grpc.CallOption) (*wire.PutCriticalResponse, error) {
	return d.target.PutCritical(ctx, in)
}
func (d *directClient) Barrier(ctx context.Context, in *wire.BarrierRequest, _ ...grpc.CallOption) (*wire.BarrierResponse, error) {
	return d.target.Barrier(ctx, in)
}
func (d *directClient) ExchangeCounts(ctx context.Context, in *wire.ExchangeCountsRequest, _ ...grpc.CallOption) (*wire.ExchangeCountsResponse, error) {
	return d.target.ExchangeCounts(ctx, in)
}
func (d *directClient) DeliverInteractions(ctx context.Context, in *wire.DeliverInteractionsRequest, _ ...grpc.CallOption) (*wire.DeliverInteractionsResponse, error) {
	return d.target.DeliverInteractions(ctx, in)
}
func (d *directClient) ControlOpcode(ctx context.Context, in *wire.ControlOpcodeRequest, _ ...grpc.CallOption) (*wire.ControlOpcodeResponse, error) {
	return d.target.ControlOpcode(ctx, in)
}
func (d *directClient) AssignPartition(ctx context.Context, in *wire.AssignPartitionRequest, _ ...grpc.CallOption) (*wire.AssignPartitionResponse, error) {
	return d.target.AssignPartition(ctx, in)
}
func (d *directClient) GatherExport(ctx context.Context, in *wire.GatherExportRequest, _ ...grpc.CallOption) (*wire.GatherExportResponse, error) {
	return d.target.GatherExport(ctx, in)
}
