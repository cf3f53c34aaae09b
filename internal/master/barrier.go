package master

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
)

// barrierKey identifies one phase of one step, the unit a Synchronize call
// rendezvouses on.
type barrierKey struct {
	Step  catalog.Time
	Phase string
}

// barrierState tracks which masters have arrived at a barrierKey. closed
// once every master in the run has arrived, at which point every
// Synchronize call blocked on done unblocks.
type barrierState struct {
	mu      sync.Mutex
	arrived map[catalog.MasterID]bool
	done    chan struct{}
	closed  bool
}

func newBarrierState() *barrierState {
	return &barrierState{
		arrived: make(map[catalog.MasterID]bool),
		done:    make(chan struct{}),
	}
}

// arrive records from's arrival at this barrier, closing done once every
// one of nbMasters has arrived. Safe to call multiple times for the same
// from (e.g. a retried RPC); only the first call per master counts.
func (b *barrierState) arrive(from catalog.MasterID, nbMasters int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrived[from] = true
	if !b.closed && len(b.arrived) >= nbMasters {
		b.closed = true
		close(b.done)
	}
}

// barrierTable owns every barrierState a master has ever touched, keyed by
// (step, phase). Entries are never removed during a run: each step adds
// one entry per Synchronize phase (five per step), so the table grows with
// the step count, and a stopped master drops the whole table on exit.
type barrierTable struct {
	mu    sync.Mutex
	byKey map[barrierKey]*barrierState
}

func newBarrierTable() *barrierTable {
	return &barrierTable{byKey: make(map[barrierKey]*barrierState)}
}

func (t *barrierTable) get(key barrierKey) *barrierState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byKey[key]
	if !ok {
		st = newBarrierState()
		t.byKey[key] = st
	}
	return st
}

// Synchronize is the cluster barrier every phase of RunTimeStep brackets
// itself with (§4.6): it marks this master's own arrival, broadcasts a
// Barrier RPC announcing that arrival to every peer (grounded on
// errgroup.WithContext fan-out/join, generalized from a single-process
// WaitGroup to a peer-counted rendezvous), and blocks until every master
// in the run — including peers whose own Barrier RPC to us arrives out of
// order — has arrived for this (step, phase).
func (m *Master) Synchronize(ctx context.Context, step catalog.Time, phase string) error {
	key := barrierKey{Step: step, Phase: phase}
	st := m.barriers.get(key)
	st.arrive(m.self, m.nbMasters)

	g, gctx := errgroup.WithContext(ctx)
	for _, peerID := range m.masters() {
		peerID := peerID
		g.Go(func() error {
			client, err := m.peers.Peer(peerID)
			if err != nil {
				return err
			}
			_, err = client.Barrier(gctx, &wire.BarrierRequest{
				Master: m.self,
				Step:   step,
				Phase:  phase,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Barrier implements wire.PeerServiceServer: it records the caller's
// arrival at the named barrier.
func (m *Master) Barrier(ctx context.Context, req *wire.BarrierRequest) (*wire.BarrierResponse, error) {
	key := barrierKey{Step: req.Step, Phase: req.Phase}
	m.barriers.get(key).arrive(req.Master, m.nbMasters)
	return &wire.BarrierResponse{}, nil
}
