package wire

import (
	"context"

	"google.golang.org/grpc"

	"github.com/swarmstep/swarmstep/internal/catalog"
)

// OrderOp enumerates the human commands a CLI front-end can issue to the
// coordinator process (§6, §7): the inbound half of the control plane,
// as opposed to Opcode, which is the coordinator's own outbound broadcast
// to followers. Driving the Coordinator through OrderService rather than
// a direct method call is what lets cmd/swarmstep-cli live in its own OS
// process, separate from the coordinator master's (§6's "M+1 processes").
type OrderOp int32

const (
	OrderRun OrderOp = iota
	OrderChangePeriod
	OrderSetThreads
	OrderModifyAttribute
	OrderExportSimulation
	OrderKill
	OrderInit
)

func (o OrderOp) String() string {
	switch o {
	case OrderRun:
		return "RUN"
	case OrderChangePeriod:
		return "CHANGE_PERIOD"
	case OrderSetThreads:
		return "SET_THREADS"
	case OrderModifyAttribute:
		return "MODIFY_ATTRIBUTE"
	case OrderExportSimulation:
		return "EXPORT_SIMULATION"
	case OrderKill:
		return "KILL"
	case OrderInit:
		return "INIT"
	default:
		return "UNKNOWN"
	}
}

// OrderRequest carries one CLI command; only the fields the named Op
// actually reads are meaningful, the same convention ControlOpcodeRequest
// establishes for Opcode.
type OrderRequest struct {
	Op OrderOp

	Steps   int32
	Period  int32
	Threads int32

	Agent catalog.GlobalID
	Attr  catalog.Attribute
	Value []byte

	Step catalog.Time
}

// OrderResponse carries an order's result. Data is populated only by
// EXPORT_SIMULATION, the one order whose caller needs bytes back rather
// than a bare acknowledgement.
type OrderResponse struct {
	Data []byte
}

// OrderServiceClient is the client interface for the command-queue
// service a CLI process dials into the coordinator's process.
type OrderServiceClient interface {
	Submit(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient creates a new OrderServiceClient.
func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc}
}

func (c *orderServiceClient) Submit(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, "/swarmstep.OrderService/Submit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderServiceServer is the server interface for the command-queue
// service. internal/control.Dispatcher's RPC-facing adapter is the sole
// implementer.
type OrderServiceServer interface {
	Submit(context.Context, *OrderRequest) (*OrderResponse, error)
}

// UnimplementedOrderServiceServer provides a zero-value default
// implementation, embedded by servers that only need the one method
// (chiefly tests).
type UnimplementedOrderServiceServer struct{}

func (UnimplementedOrderServiceServer) Submit(context.Context, *OrderRequest) (*OrderResponse, error) {
	return nil, nil
}

func _OrderService_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/swarmstep.OrderService/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).Submit(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterOrderServiceServer registers the order service with gRPC.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "swarmstep.OrderService",
		HandlerType: (*OrderServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Submit", Handler: _OrderService_Submit_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "order_service.proto",
	}, srv)
}
