package partition

import (
	"context"
	"fmt"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
)

// PeerDialer resolves a master id to its PeerService stub. Defined
// locally, as in the other internal packages, so partition does not
// depend on internal/cluster's concrete type.
type PeerDialer interface {
	Peer(catalog.MasterID) (wire.PeerServiceClient, error)
}

// Assign computes the round-robin assignment for one agent type's total
// population and installs it into table (including this master's own
// share). If self is the coordinator (master 0), it also pushes the
// assignment to every other master via AssignPartition so every master's
// Table converges on the same ownership before the first step runs.
func Assign(ctx context.Context, table *Table, peers PeerDialer, self catalog.MasterID, masters []catalog.MasterID, typ catalog.AgentType, total uint64, nbMasters int) error {
	full := RoundRobin(total, nbMasters)
	table.Install(typ, total, full)

	if self != 0 {
		return nil
	}
	return broadcast(ctx, peers, self, masters, typ, total, full)
}

// Extend grows typ's population by n agents (ADD_AGENTS) and re-installs
// the full, now-larger assignment. Because RoundRobin is a pure function
// of (total, nbMasters), recomputing it for existing+n reproduces every
// prior agent's owner unchanged and additionally assigns the n new local
// ids round-robin, continuing the same rotation.
func Extend(ctx context.Context, table *Table, peers PeerDialer, self catalog.MasterID, masters []catalog.MasterID, typ catalog.AgentType, n uint64, nbMasters int) error {
	newTotal := table.Total(typ) + n
	full := RoundRobin(newTotal, nbMasters)
	table.Install(typ, newTotal, full)

	if self != 0 {
		return nil
	}
	return broadcast(ctx, peers, self, masters, typ, newTotal, full)
}

func broadcast(ctx context.Context, peers PeerDialer, self catalog.MasterID, masters []catalog.MasterID, typ catalog.AgentType, total uint64, full map[catalog.MasterID][]catalog.AgentID) error {
	for _, masterID := range masters {
		if masterID == self {
			continue
		}
		client, err := peers.Peer(masterID)
		if err != nil {
			return fmt.Errorf("partition: resolve master %d: %w", masterID, err)
		}

		ids := full[masterID]
		localIDs := make([]catalog.AgentID, len(ids))
		copy(localIDs, ids)

		if _, err := client.AssignPartition(ctx, &wire.AssignPartitionRequest{
			Master:      masterID,
			Type:        typ,
			LocalIDs:    localIDs,
			TotalByType: map[catalog.AgentType]uint64{typ: total},
		}); err != nil {
			return fmt.Errorf("partition: assign master %d: %w", masterID, err)
		}
	}
	return nil
}

// Receive installs an assignment pushed by the coordinator, on a
// follower master handling an incoming AssignPartition RPC. Since
// RoundRobin is a pure function of (total, nbMasters), the follower
// recomputes the full cluster-wide assignment itself rather than relying
// solely on the LocalIDs fragment addressed to it (P5); req.LocalIDs is
// used only as a consistency check against that recomputation.
func Receive(table *Table, req *wire.AssignPartitionRequest, nbMasters int) error {
	total := req.TotalByType[req.Type]
	full := RoundRobin(total, nbMasters)

	if got, want := len(full[req.Master]), len(req.LocalIDs); got != want {
		return fmt.Errorf("partition: assignment mismatch for master %d: recomputed %d ids, coordinator sent %d", req.Master, got, want)
	}

	table.Install(req.Type, total, full)
	return nil
}
