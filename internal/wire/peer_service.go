// Package wire defines the peer-to-peer gRPC service every master exposes
// to every other master in the cluster. Request/response types and the
// service descriptor are hand-written in the style of a generated protoc
// stub rather than produced by one, since the layout they carry is shaped
// directly by the runtime catalog instead of a .proto file.
package wire

import (
	"context"

	"google.golang.org/grpc"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// TODO: Replace with generated protobuf code once a .proto schema for the
// wire messages is checked in.

// GetPublicRequest asks a master for the current public sub-record of one
// of its local agents. This realizes the one-sided read half of the public
// attribute window.
type GetPublicRequest struct {
	Agent catalog.GlobalID
}

// GetPublicResponse carries the raw public sub-record bytes, or Found=false
// if the requested agent no longer lives on the responding master.
type GetPublicResponse struct {
	Data  []byte
	Found bool
}

// PutCriticalRequest pushes a changed critical sub-record to a peer's
// critical window replica. Critical attributes are eagerly broadcast, so
// every master that owns an agent sends one PutCritical per peer per
// changed critical record.
type PutCriticalRequest struct {
	Agent catalog.GlobalID
	Step  catalog.Time
	Data  []byte
}

// PutCriticalResponse is empty; PutCritical either succeeds or the call
// itself fails.
type PutCriticalResponse struct{}

// BarrierRequest signals that the calling master has finished the named
// phase of the given step and is waiting for every other master to reach
// the same point (Synchronize in the per-step pipeline).
type BarrierRequest struct {
	Master catalog.MasterID
	Step   catalog.Time
	Phase  string
}

// BarrierResponse is empty; the callee records the caller's arrival and
// returns at once. The caller's Synchronize then waits until the arrivals
// of every master for the same step and phase have been recorded.
type BarrierResponse struct{}

// InteractionCount is one (recipient master, interaction type) outgoing
// count, part of the all-to-all count exchange that precedes batched
// interaction transfer.
type InteractionCount struct {
	Type  catalog.InteractionType
	Count int32
}

// ExchangeCountsRequest announces, for one step, how many interactions of
// each type the calling master intends to deliver to the callee.
type ExchangeCountsRequest struct {
	From   catalog.MasterID
	Step   catalog.Time
	Counts []InteractionCount
}

// ExchangeCountsResponse is empty; counts only need to be durably received,
// not answered.
type ExchangeCountsResponse struct{}

// DeliverInteractionsRequest carries one batch of encoded interaction
// payloads of a single type, addressed by recipient global id, from one
// master to another.
type DeliverInteractionsRequest struct {
	From catalog.MasterID
	Step catalog.Time
	Type catalog.InteractionType
	// Senders and Recipients are parallel arrays: Senders[i] sent the
	// interaction addressed to Recipients[i] (I5's SenderGlobalID/
	// RecipientGlobalID pair).
	Senders    []catalog.GlobalID
	Recipients []catalog.GlobalID
	// Payloads is the concatenation of each recipient's encoded interaction
	// record, each exactly the interaction type's frozen wire size.
	Payloads []byte
}

// DeliverInteractionsResponse reports how many of the delivered
// interactions were dropped because their recipient no longer exists on
// this master (I6/B3). The receiving master counts these itself
// (Router.DroppedReceived); the sender does not read the count and does
// not retry.
type DeliverInteractionsResponse struct {
	Dropped int32
}

// Opcode enumerates the control-plane commands a coordinator can broadcast
// to followers.
type Opcode int32

const (
	OpIdle Opcode = iota
	OpRun
	OpChangePeriod
	OpAddAgents
	OpModifyAttribute
	OpExportSimulation
	OpKill
	OpInit
)

func (o Opcode) String() string {
	switch o {
	case OpIdle:
		return "IDLE"
	case OpRun:
		return "RUN"
	case OpChangePeriod:
		return "CHANGE_PERIOD"
	case OpAddAgents:
		return "ADD_AGENTS"
	case OpModifyAttribute:
		return "MODIFY_ATTRIBUTE"
	case OpExportSimulation:
		return "EXPORT_SIMULATION"
	case OpKill:
		return "KILL"
	default:
		return "UNKNOWN"
	}
}

// ControlOpcodeRequest carries one control-plane command, opaque payload
// encoding left to the opcode-specific handler (e.g. AddAgentsRequest,
// ModifyAttributeRequest, marshaled with encoding/gob).
type ControlOpcodeRequest struct {
	Opcode  Opcode
	Payload []byte
}

// ControlOpcodeResponse is empty; followers acknowledge by returning
// without error.
type ControlOpcodeResponse struct{}

// AssignPartitionRequest tells a follower which local ids of which agent
// type it owns for the run, plus the cluster-wide vector of global ids so
// every master can size its windows identically (P5).
type AssignPartitionRequest struct {
	Master       catalog.MasterID
	Type         catalog.AgentType
	LocalIDs     []catalog.AgentID
	TotalByType  map[catalog.AgentType]uint64
}

// AssignPartitionResponse is empty; the follower installs the ownership
// assignment in its partition table before returning.
type AssignPartitionResponse struct{}

// GatherExportRequest asks a master to return a serialized snapshot of
// every agent it currently owns, for assembly into a cluster-wide export
// document.
type GatherExportRequest struct {
	Step catalog.Time
}

// GatherExportResponse carries the requesting master's own serialization
// format; pkg/snapshot defines the actual document shape.
type GatherExportResponse struct {
	Data []byte
}

// PeerServiceClient is the client interface for the peer-to-peer service.
type PeerServiceClient interface {
	GetPublic(ctx context.Context, in *GetPublicRequest, opts ...grpc.CallOption) (*GetPublicResponse, error)
	PutCritical(ctx context.Context, in *PutCriticalRequest, opts ...grpc.CallOption) (*PutCriticalResponse, error)
	Barrier(ctx context.Context, in *BarrierRequest, opts ...grpc.CallOption) (*BarrierResponse, error)
	ExchangeCounts(ctx context.Context, in *ExchangeCountsRequest, opts ...grpc.CallOption) (*ExchangeCountsResponse, error)
	DeliverInteractions(ctx context.Context, in *DeliverInteractionsRequest, opts ...grpc.CallOption) (*DeliverInteractionsResponse, error)
	ControlOpcode(ctx context.Context, in *ControlOpcodeRequest, opts ...grpc.CallOption) (*ControlOpcodeResponse, error)
	AssignPartition(ctx context.Context, in *AssignPartitionRequest, opts ...grpc.CallOption) (*AssignPartitionResponse, error)
	GatherExport(ctx context.Context, in *GatherExportRequest, opts ...grpc.CallOption) (*GatherExportResponse, error)
}

type peerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerServiceClient creates a new PeerServiceClient.
func NewPeerServiceClient(cc grpc.ClientConnInterface) PeerServiceClient {
	return &peerServiceClient{cc}
}

func (c *peerServiceClient) GetPublic(ctx context.Context, in *GetPublicRequest, opts ...grpc.CallOption) (*GetPublicResponse, error) {
	out := new(GetPublicResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/GetPublic", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) PutCritical(ctx context.Context, in *PutCriticalRequest, opts ...grpc.CallOption) (*PutCriticalResponse, error) {
	out := new(PutCriticalResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/PutCritical", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) Barrier(ctx context.Context, in *BarrierRequest, opts ...grpc.CallOption) (*BarrierResponse, error) {
	out := new(BarrierResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/Barrier", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) ExchangeCounts(ctx context.Context, in *ExchangeCountsRequest, opts ...grpc.CallOption) (*ExchangeCountsResponse, error) {
	out := new(ExchangeCountsResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/ExchangeCounts", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) DeliverInteractions(ctx context.Context, in *DeliverInteractionsRequest, opts ...grpc.CallOption) (*DeliverInteractionsResponse, error) {
	out := new(DeliverInteractionsResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/DeliverInteractions", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) ControlOpcode(ctx context.Context, in *ControlOpcodeRequest, opts ...grpc.CallOption) (*ControlOpcodeResponse, error) {
	out := new(ControlOpcodeResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/ControlOpcode", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) AssignPartition(ctx context.Context, in *AssignPartitionRequest, opts ...grpc.CallOption) (*AssignPartitionResponse, error) {
	out := new(AssignPartitionResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/AssignPartition", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) GatherExport(ctx context.Context, in *GatherExportRequest, opts ...grpc.CallOption) (*GatherExportResponse, error) {
	out := new(GatherExportResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.PeerService/GatherExport", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PeerServiceServer is the server interface for the peer-to-peer service.
// internal/master.Master is the sole implementer, delegating each method
// to the sub-component that owns the corresponding state.
type PeerServiceServer interface {
	GetPublic(context.Context, *GetPublicRequest) (*GetPublicResponse, error)
	PutCritical(context.Context, *PutCriticalRequest) (*PutCriticalResponse, error)
	Barrier(context.Context, *BarrierRequest) (*BarrierResponse, error)
	ExchangeCounts(context.Context, *ExchangeCountsRequest) (*ExchangeCountsResponse, error)
	DeliverInteractions(context.Context, *DeliverInteractionsRequest) (*DeliverInteractionsResponse, error)
	ControlOpcode(context.Context, *ControlOpcodeRequest) (*ControlOpcodeResponse, error)
	AssignPartition(context.Context, *AssignPartitionRequest) (*AssignPartitionResponse, error)
	GatherExport(context.Context, *GatherExportRequest) (*GatherExportResponse, error)
}

// UnimplementedPeerServiceServer provides zero-value default
// implementations, to be embedded by servers that only need a subset of
// methods (chiefly tests).
type UnimplementedPeerServiceServer struct{}

func (UnimplementedPeerServiceServer) GetPublic(context.Context, *GetPublicRequest) (*GetPublicResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) PutCritical(context.Context, *PutCriticalRequest) (*PutCriticalResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) Barrier(context.Context, *BarrierRequest) (*BarrierResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) ExchangeCounts(context.Context, *ExchangeCountsRequest) (*ExchangeCountsResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) DeliverInteractions(context.Context, *DeliverInteractionsRequest) (*DeliverInteractionsResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) ControlOpcode(context.Context, *ControlOpcodeRequest) (*ControlOpcodeResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) AssignPartition(context.Context, *AssignPartitionRequest) (*AssignPartitionResponse, error) {
	return nil, nil
}

func (UnimplementedPeerServiceServer) GatherExport(context.Context, *GatherExportRequest) (*GatherExportResponse, error) {
	return nil, nil
}

func _PeerService_GetPublic_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPublicRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).GetPublic(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/GetPublic"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).GetPublic(ctx, req.(*GetPublicRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_PutCritical_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PutCriticalRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).PutCritical(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/PutCritical"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).PutCritical(ctx, req.(*PutCriticalRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_Barrier_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BarrierRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).Barrier(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/Barrier"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).Barrier(ctx, req.(*BarrierRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_ExchangeCounts_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExchangeCountsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).ExchangeCounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/ExchangeCounts"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).ExchangeCounts(ctx, req.(*ExchangeCountsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_DeliverInteractions_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeliverInteractionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).DeliverInteractions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/DeliverInteractions"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).DeliverInteractions(ctx, req.(*DeliverInteractionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_ControlOpcode_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ControlOpcodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).ControlOpcode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/ControlOpcode"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).ControlOpcode(ctx, req.(*ControlOpcodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_AssignPartition_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AssignPartitionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).AssignPartition(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/AssignPartition"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).AssignPartition(ctx, req.(*AssignPartitionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PeerService_GatherExport_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GatherExportRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).GatherExport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.PeerService/GatherExport"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServiceServer).GatherExport(ctx, req.(*GatherExportRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterPeerServiceServer registers the peer service with gRPC.
func RegisterPeerServiceServer(s grpc.ServiceRegistrar, srv PeerServiceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "swarmstep.PeerService",
		HandlerType: (*PeerServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetPublic", Handler: _PeerService_GetPublic_Handler},
			{MethodName: "PutCritical", Handler: _PeerService_PutCritical_Handler},
			{MethodName: "Barrier", Handler: _PeerService_Barrier_Handler},
			{MethodName: "ExchangeCounts", Handler: _PeerService_ExchangeCounts_Handler},
			{MethodName: "DeliverInteractions", Handler: _PeerService_DeliverInteractions_Handler},
			{MethodName: "ControlOpcode", Handler: _PeerService_ControlOpcode_Handler},
			{MethodName: "AssignPartition", Handler: _PeerService_AssignPartition_Handler},
			{MethodName: "GatherExport", Handler: _PeerService_GatherExport_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "peer_service.proto",
	}, srv)
}
