package partition

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
)

func TestRoundRobin_Distributes(t *testing.T) {
	got := RoundRobin(7, 3)
	want := map[catalog.MasterID][]catalog.AgentID{
		0: {0, 3, 6},
		1: {1, 4},
		2: {2, 5},
	}
	for m, ids := range want {
		if len(got[m]) != len(ids) {
			t.Fatalf("master %d = %v, want %v", m, got[m], ids)
		}
		for i := range ids {
			if got[m][i] != ids[i] {
				t.Errorf("master %d[%d] = %d, want %d", m, i, got[m][i], ids[i])
			}
		}
	}
}

func TestExtendRoundRobin_ContinuesRotation(t *testing.T) {
	base := RoundRobin(7, 3)
	ext := ExtendRoundRobin(7, 3, 3)
	full := RoundRobin(10, 3)

	for m := catalog.MasterID(0); m < 3; m++ {
		combined := append(append([]catalog.AgentID{}, base[m]...), ext[m]...)
		if len(combined) != len(full[m]) {
			t.Fatalf("master %d combined = %v, want %v", m, combined, full[m])
		}
		for i := range combined {
			if combined[i] != full[m][i] {
				t.Errorf("master %d[%d] = %d, want %d", m, i, combined[i], full[m][i])
			}
		}
	}
}

func makeCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	b := catalog.NewBuilder()
	if err := b.RegisterAgentType("walker", 0, func(catalog.GlobalID) any { return struct{}{} }); err != nil {
		t.Fatal(err)
	}
	cat, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestTable_OwnerAndLocalIDs(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 1)
	table.Install(0, 7, RoundRobin(7, 3))

	for local := catalog.AgentID(0); local < 7; local++ {
		gid := cat.GlobalID(local, 0)
		master, ok := table.Owner(gid)
		if !ok {
			t.Fatalf("Owner(%d) not found", gid)
		}
		if want := catalog.MasterID(int(local) % 3); master != want {
			t.Errorf("Owner(%d) = %d, want %d", gid, master, want)
		}
	}

	mine := table.LocalIDs(0)
	want := []catalog.AgentID{1, 4}
	if len(mine) != len(want) {
		t.Fatalf("LocalIDs = %v, want %v", mine, want)
	}
	for i := range want {
		if mine[i] != want[i] {
			t.Errorf("LocalIDs[%d] = %d, want %d", i, mine[i], want[i])
		}
	}
}

func TestTable_Owner_UnknownAgentNotFound(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 0)
	gid := cat.GlobalID(99, 0)
	if _, ok := table.Owner(gid); ok {
		t.Error("Owner() found an uninstalled agent")
	}
}

func TestTable_Remove(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 1)
	table.Install(0, 7, RoundRobin(7, 3))

	gid := cat.GlobalID(1, 0)
	table.Remove(gid)

	if table.Exists(gid) {
		t.Error("Exists() true after Remove")
	}
	for _, id := range table.LocalIDs(0) {
		if id == 1 {
			t.Error("removed id still present in LocalIDs")
		}
	}
}

func TestTable_Install_ExtendReplacesNotAccumulates(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 1)
	table.Install(0, 7, RoundRobin(7, 3))
	table.Install(0, 10, RoundRobin(10, 3))

	if table.Total(0) != 10 {
		t.Errorf("Total() = %d, want 10", table.Total(0))
	}
	mine := table.LocalIDs(0)
	want := []catalog.AgentID{1, 4, 7}
	if len(mine) != len(want) {
		t.Fatalf("LocalIDs = %v, want %v", mine, want)
	}
}

type fakePeer struct {
	received []wire.AssignPartitionRequest
}

func (f *fakePeer) GetPublic(context.Context, *wire.GetPublicRequest, ...grpc.CallOption) (*wire.GetPublicResponse, error) {
	return &wire.GetPublicResponse{}, nil
}
func (f *fakePeer) PutCritical(context.Context, *wire.PutCriticalRequest, ...grpc.CallOption) (*wire.PutCriticalResponse, error) {
	return &wire.PutCriticalResponse{}, nil
}
func (f *fakePeer) Barrier(context.Context, *wire.BarrierRequest, ...grpc.CallOption) (*wire.BarrierResponse, error) {
	return &wire.BarrierResponse{}, nil
}
func (f *fakePeer) ExchangeCounts(context.Context, *wire.ExchangeCountsRequest, ...grpc.CallOption) (*wire.ExchangeCountsResponse, error) {
	return &wire.ExchangeCountsResponse{}, nil
}
func (f *fakePeer) DeliverInteractions(context.Context, *wire.DeliverInteractionsRequest, ...grpc.CallOption) (*wire.DeliverInteractionsResponse, error) {
	return &wire.DeliverInteractionsResponse{}, nil
}
func (f *fakePeer) ControlOpcode(context.Context, *wire.ControlOpcodeRequest, ...grpc.CallOption) (*wire.ControlOpcodeResponse, error) {
	return &wire.ControlOpcodeResponse{}, nil
}
func (f *fakePeer) AssignPartition(ctx context.Context, in *wire.AssignPartitionRequest, opts ...grpc.CallOption) (*wire.AssignPartitionResponse, error) {
	f.received = append(f.received, *in)
	return &wire.AssignPartitionResponse{}, nil
}
func (f *fakePeer) GatherExport(context.Context, *wire.GatherExportRequest, ...grpc.CallOption) (*wire.GatherExportResponse, error) {
	return &wire.GatherExportResponse{}, nil
}

type fakeDialer struct {
	peers map[catalog.MasterID]*fakePeer
}

func (d *fakeDialer) Peer(id catalog.MasterID) (wire.PeerServiceClient, error) {
	p, ok := d.peers[id]
	if !ok {
		return nil, errors.New("no such peer")
	}
	return p, nil
}

func TestAssign_CoordinatorBroadcastsToFollowers(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 0)
	peer1, peer2 := &fakePeer{}, &fakePeer{}
	dialer := &fakeDialer{peers: map[catalog.MasterID]*fakePeer{1: peer1, 2: peer2}}

	err := Assign(context.Background(), table, dialer, 0, []catalog.MasterID{0, 1, 2}, 0, 7, 3)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if len(peer1.received) != 1 || len(peer1.received[0].LocalIDs) != 2 {
		t.Fatalf("peer1 received = %v", peer1.received)
	}
	if len(peer2.received) != 1 || len(peer2.received[0].LocalIDs) != 2 {
		t.Fatalf("peer2 received = %v", peer2.received)
	}
	if len(table.LocalIDs(0)) != 3 {
		t.Errorf("coordinator LocalIDs = %v, want 3 entries", table.LocalIDs(0))
	}
}

func TestAssign_FollowerDoesNotBroadcast(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 1)
	dialer := &fakeDialer{peers: map[catalog.MasterID]*fakePeer{}}

	err := Assign(context.Background(), table, dialer, 1, []catalog.MasterID{0, 1, 2}, 0, 7, 3)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(table.LocalIDs(0)) != 2 {
		t.Errorf("follower LocalIDs = %v, want 2 entries", table.LocalIDs(0))
	}
}

func TestReceive_InstallsFullAssignment(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 1)

	req := &wire.AssignPartitionRequest{
		Master:      1,
		Type:        0,
		LocalIDs:    []catalog.AgentID{1, 4},
		TotalByType: map[catalog.AgentType]uint64{0: 7},
	}
	if err := Receive(table, req, 3); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	for _, local := range []catalog.AgentID{0, 1, 2, 3, 4, 5, 6} {
		gid := cat.GlobalID(local, 0)
		if _, ok := table.Owner(gid); !ok {
			t.Errorf("Owner(%d) missing after Receive", gid)
		}
	}
}

func TestReceive_MismatchDetected(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 1)

	req := &wire.AssignPartitionRequest{
		Master:      1,
		Type:        0,
		LocalIDs:    []catalog.AgentID{1, 4, 8},
		TotalByType: map[catalog.AgentType]uint64{0: 7},
	}
	if err := Receive(table, req, 3); err == nil {
		t.Fatal("Receive() = nil, want mismatch error")
	}
}

func TestExtend_GrowsPopulationRoundRobin(t *testing.T) {
	cat := makeCatalog(t)
	table := New(cat, 0)
	dialer := &fakeDialer{peers: map[catalog.MasterID]*fakePeer{}}

	if err := Assign(context.Background(), table, dialer, 0, []catalog.MasterID{0}, 0, 7, 1); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := Extend(context.Background(), table, dialer, 0, []catalog.MasterID{0}, 0, 3, 1); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if table.Total(0) != 10 {
		t.Errorf("Total() = %d, want 10", table.Total(0))
	}
}
