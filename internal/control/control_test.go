package control

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"

	publicAgent "github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

// fakeRunner is a minimal control.Runner: it counts RunTimeStep calls
// and answers GatherExport with a fixed payload, without any of the
// window/partition/handler machinery a real *master.Master carries. Its
// Catalog/AssignPartition/ConstructPopulation methods are unexercised
// stubs; none of this file's tests drive INIT.
type fakeRunner struct {
	self  catalog.MasterID
	reg   publicAgent.Registry
	steps int32 // atomic
	data  []byte
}

func (r *fakeRunner) Self() catalog.MasterID         { return r.self }
func (r *fakeRunner) Registry() publicAgent.Registry { return r.reg }
func (r *fakeRunner) RunTimeStep(ctx context.Context) error {
	atomic.AddInt32(&r.steps, 1)
	return nil
}
func (r *fakeRunner) GatherExport(ctx context.Context, req *wire.GatherExportRequest) (*wire.GatherExportResponse, error) {
	return &wire.GatherExportResponse{Data: r.data}, nil
}
func (r *fakeRunner) Catalog() *catalog.Catalog { return nil }
func (r *fakeRunner) AssignPartition(ctx context.Context, typ catalog.AgentType, total uint64) error {
	return nil
}
func (r *fakeRunner) ConstructPopulation(doc *snapshot.InitDocument) error { return nil }

// directClient bridges a Coordinator's broadcast straight into a peer
// Follower's HandleOpcode and a peer fakeRunner's GatherExport, the same
// in-process bridging pattern internal/master's own test suite uses,
// since only ControlOpcode and GatherExport are ever exercised here.
type directClient struct {
	follower *Follower
	runner   *fakeRunner
}

func (d *directClient) GetPublic(ctx context.Context, in *wire.GetPublicRequest, _ ...grpc.CallOption) (*wire.GetPublicResponse, error) {
	return &wire.GetPublicResponse{}, nil
}
func (d *directClient) PutCritical(ctx context.Context, in *wire.PutCriticalRequest, _ ...grpc.CallOption) (*wire.PutCriticalResponse, error) {
	return &wire.PutCriticalResponse{}, nil
}
func (d *directClient) Barrier(ctx context.Context, in *wire.BarrierRequest, _ ...grpc.CallOption) (*wire.BarrierResponse, error) {
	return &wire.BarrierResponse{}, nil
}
func (d *directClient) ExchangeCounts(ctx context.Context, in *wire.ExchangeCountsRequest, _ ...grpc.CallOption) (*wire.ExchangeCountsResponse, error) {
	return &wire.ExchangeCountsResponse{}, nil
}
func (d *directClient) DeliverInteractions(ctx context.Context, in *wire.DeliverInteractionsRequest, _ ...grpc.CallOption) (*wire.DeliverInteractionsResponse, error) {
	return &wire.DeliverInteractionsResponse{}, nil
}
func (d *directClient) AssignPartition(ctx context.Context, in *wire.AssignPartitionRequest, _ ...grpc.CallOption) (*wire.AssignPartitionResponse, error) {
	return &wire.AssignPartitionResponse{}, nil
}
func (d *directClient) ControlOpcode(ctx context.Context, in *wire.ControlOpcodeRequest, _ ...grpc.CallOption) (*wire.ControlOpcodeResponse, error) {
	if err := d.follower.HandleOpcode(ctx, in.Opcode, in.Payload); err != nil {
		return nil, err
	}
	return &wire.ControlOpcodeResponse{}, nil
}
func (d *directClient) GatherExport(ctx context.Context, in *wire.GatherExportRequest, _ ...grpc.CallOption) (*wire.GatherExportResponse, error) {
	return d.runner.GatherExport(ctx, in)
}

type fakeDialer struct {
	peer catalog.MasterID
	client wire.PeerServiceClient
}

func (d *fakeDialer) Peer(id catalog.MasterID) (wire.PeerServiceClient, error) { return d.client, nil }
func (d *fakeDialer) Masters() []catalog.MasterID                             { return []catalog.MasterID{d.peer} }

// writableAgent is a stub publicAgent.Agent that also implements
// agent.AttributeWriter, for exercising MODIFY_ATTRIBUTE.
type writableAgent struct {
	mu    sync.Mutex
	attr  catalog.Attribute
	value []byte
}

func (a *writableAgent) Behavior(context.Context, *publicAgent.Env) error { return nil }
func (a *writableAgent) ReceiveMessage(*publicAgent.Message)              {}
func (a *writableAgent) CheckModifiedCritical() bool                      { return false }
func (a *writableAgent) CopyPublic(dst []byte) int                        { return 0 }
func (a *writableAgent) CopyCritical(dst []byte) int                      { return 0 }
func (a *writableAgent) ToWire() []byte                                   { return nil }
func (a *writableAgent) ToSnapshot() map[string]any                       { return nil }

func (a *writableAgent) WriteAttribute(attr catalog.Attribute, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attr = attr
	a.value = append([]byte(nil), value...)
	return nil
}

func (a *writableAgent) written() (catalog.Attribute, []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attr, a.value
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestCoordinatorRun_AdvancesSelfAndFollower(t *testing.T) {
	selfRunner := &fakeRunner{self: 0}
	peerRunner := &fakeRunner{self: 1}
	follower := NewFollower(peerRunner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go follower.Wait(ctx)

	dialer := &fakeDialer{peer: 1, client: &directClient{follower: follower, runner: peerRunner}}
	coord := NewCoordinator(selfRunner, dialer)

	if err := coord.ChangePeriod(ctx, 2); err != nil {
		t.Fatalf("ChangePeriod: %v", err)
	}
	waitFor(t, time.Second, func() bool { return follower.period == 2 })

	if err := coord.Run(ctx, 3); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt32(&selfRunner.steps); got != 6 {
		t.Fatalf("self steps = %d, want 6 (period 2 x n 3)", got)
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&peerRunner.steps) == 6 })
}

func TestCoordinatorModifyAttribute_OwnerOnlyCommits(t *testing.T) {
	id := catalog.GlobalID(42)
	target := &writableAgent{}

	selfReg := publicAgent.NewLocalRegistry() // master 0 does not own id
	peerReg := publicAgent.NewLocalRegistry()
	peerReg.Put(id, target)

	selfRunner := &fakeRunner{self: 0, reg: selfReg}
	peerRunner := &fakeRunner{self: 1, reg: peerReg}
	follower := NewFollower(peerRunner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go follower.Wait(ctx)

	dialer := &fakeDialer{peer: 1, client: &directClient{follower: follower, runner: peerRunner}}
	coord := NewCoordinator(selfRunner, dialer)

	if err := coord.ModifyAttribute(ctx, id, 7, []byte{9, 9}); err != nil {
		t.Fatalf("ModifyAttribute: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		attr, value := target.written()
		return attr == 7 && len(value) == 2
	})
}

func TestCoordinatorExportSimulation_GathersSelfAndFollower(t *testing.T) {
	selfRunner := &fakeRunner{self: 0, data: []byte("self-doc")}
	peerRunner := &fakeRunner{self: 1, data: []byte("peer-doc")}
	follower := NewFollower(peerRunner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go follower.Wait(ctx)

	dialer := &fakeDialer{peer: 1, client: &directClient{follower: follower, runner: peerRunner}}
	coord := NewCoordinator(selfRunner, dialer)

	parts, err := coord.ExportSimulation(ctx, 10)
	if err != nil {
		t.Fatalf("ExportSimulation: %v", err)
	}
	if string(parts[0]) != "self-doc" {
		t.Errorf("parts[0] = %q, want %q", parts[0], "self-doc")
	}
	if string(parts[1]) != "peer-doc" {
		t.Errorf("parts[1] = %q, want %q", parts[1], "peer-doc")
	}
}

func TestFollowerKill_StopsWaitLoop(t *testing.T) {
	runner := &fakeRunner{self: 1}
	follower := NewFollower(runner)

	done := make(chan error, 1)
	go func() { done <- follower.Wait(context.Background()) }()

	if err := follower.HandleOpcode(context.Background(), wire.OpKill, nil); err != nil {
		t.Fatalf("HandleOpcode: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after KILL")
	}
}

func TestFollowerIdle_DoesNotAdvanceSteps(t *testing.T) {
	runner := &fakeRunner{self: 1}
	follower := NewFollower(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go follower.Wait(ctx)

	if err := follower.HandleOpcode(ctx, wire.OpIdle, nil); err != nil {
		t.Fatalf("HandleOpcode: %v", err)
	}
	if err := follower.HandleOpcode(ctx, wire.OpKill, nil); err != nil {
		t.Fatalf("HandleOpcode: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(follower.cmds) == 0 }) // let Wait drain both
	if got := atomic.LoadInt32(&runner.steps); got != 0 {
		t.Fatalf("steps = %d, want 0 after IDLE", got)
	}
}
