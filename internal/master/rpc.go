package master

import (
	"context"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/partition"
	"github.com/swarmstep/swarmstep/internal/wire"
)

// GetPublic answers a peer's one-sided read of one of this master's
// locally owned agents' public sub-records.
func (m *Master) GetPublic(ctx context.Context, req *wire.GetPublicRequest) (*wire.GetPublicResponse, error) {
	data, found, err := m.public.GetLocal(req.Agent)
	if err != nil {
		return nil, err
	}
	return &wire.GetPublicResponse{Data: data, Found: found}, nil
}

// PutCritical installs a critical sub-record broadcast by its owning
// master into this master's full replica (I3).
func (m *Master) PutCritical(ctx context.Context, req *wire.PutCriticalRequest) (*wire.PutCriticalResponse, error) {
	m.critical.ApplyRemote(req.Agent, req.Data)
	return &wire.PutCriticalResponse{}, nil
}

// ExchangeCounts records a peer's announced per-type interaction counts
// for the upcoming transfer. The current Router allocates its inbox
// lazily per delivered batch rather than from a preallocated count, so
// this is an acknowledgement rather than a state update; the two-phase
// count-then-transfer protocol shape of §4.5 is still honored by the
// caller's synchronous RPC ordering.
func (m *Master) ExchangeCounts(ctx context.Context, req *wire.ExchangeCountsRequest) (*wire.ExchangeCountsResponse, error) {
	return &wire.ExchangeCountsResponse{}, nil
}

// DeliverInteractions accepts a batch of interactions addressed to this
// master's locally owned agents, dropping any whose recipient no longer
// exists locally (B3).
func (m *Master) DeliverInteractions(ctx context.Context, req *wire.DeliverInteractionsRequest) (*wire.DeliverInteractionsResponse, error) {
	layout, ok := m.cat.InteractionType(req.Type)
	if !ok {
		return &wire.DeliverInteractionsResponse{}, nil
	}
	dropped := m.router.Deliver(req.From, req.Type, req.Senders, req.Recipients, req.Payloads, layout.Size, m.existsLocally)
	return &wire.DeliverInteractionsResponse{Dropped: dropped}, nil
}

// existsLocally reports whether a global id is one of this master's
// currently registered agents, the predicate Router.Deliver uses to
// implement drop-on-missing-recipient (B3).
func (m *Master) existsLocally(id catalog.GlobalID) bool {
	_, ok := m.registry.Get(id)
	return ok
}

// ControlOpcode forwards a coordinator-broadcast control command to the
// installed ControlSink (internal/control.Follower). A master with no
// sink installed acknowledges without acting, which is valid for a
// master under direct test control rather than a running control plane.
func (m *Master) ControlOpcode(ctx context.Context, req *wire.ControlOpcodeRequest) (*wire.ControlOpcodeResponse, error) {
	if m.controlSink != nil {
		if err := m.controlSink.HandleOpcode(ctx, req.Opcode, req.Payload); err != nil {
			return nil, err
		}
	}
	return &wire.ControlOpcodeResponse{}, nil
}

// AssignPartition installs a coordinator-pushed ownership assignment for
// one agent type (§4.8), recomputing the full round-robin assignment
// locally rather than trusting the partial fragment addressed to this
// master (P5).
func (m *Master) AssignPartition(ctx context.Context, req *wire.AssignPartitionRequest) (*wire.AssignPartitionResponse, error) {
	if err := partition.Receive(m.table, req, m.nbMasters); err != nil {
		return nil, err
	}
	return &wire.AssignPartitionResponse{}, nil
}

// GatherExport serializes this master's locally owned agents through the
// installed ExportSink (pkg/snapshot). A master with no sink installed
// answers with an empty document.
func (m *Master) GatherExport(ctx context.Context, req *wire.GatherExportRequest) (*wire.GatherExportResponse, error) {
	if m.exportSink == nil {
		return &wire.GatherExportResponse{}, nil
	}
	data, err := m.exportSink.Export(ctx, req.Step)
	if err != nil {
		return nil, err
	}
	return &wire.GatherExportResponse{Data: data}, nil
}
