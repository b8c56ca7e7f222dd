package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "parkwash.staff.v1.StaffConsole"

const (
	methodApproveCheckout = "ApproveCheckout"
	methodRejectCheckout  = "RejectCheckout"
	methodApproveTopup    = "ApproveTopup"
	methodRejectTopup     = "RejectTopup"
	methodRunSweep        = "RunSweep"
	methodGetBalance      = "GetBalance"
)

// StaffConsole is the server API of parkwash.staff.v1.StaffConsole.
type StaffConsole interface {
	ApproveCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveTopup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectTopup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunSweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(StaffConsole, context.Context, *structpb.Struct) (*structpb.Struct, error)

// StaffConsoleServiceDesc describes the service for grpc.ServiceRegistrar.
var StaffConsoleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StaffConsole)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodApproveCheckout, StaffConsole.ApproveCheckout),
		unaryMethod(methodRejectCheckout, StaffConsole.RejectCheckout),
		unaryMethod(methodApproveTopup, StaffConsole.ApproveTopup),
		unaryMethod(methodRejectTopup, StaffConsole.RejectTopup),
		unaryMethod(methodRunSweep, StaffConsole.RunSweep),
		unaryMethod(methodGetBalance, StaffConsole.GetBalance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parkwash/staff/v1/staff_console.proto",
}

// RegisterStaffConsoleServer registers console on registrar.
func RegisterStaffConsoleServer(registrar grpc.ServiceRegistrar, console StaffConsole) {
	registrar.RegisterService(&StaffConsoleServiceDesc, console)
}

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(structpb.Struct)
			if err := dec(request); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StaffConsole), ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StaffConsole), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, request, info, handler)
		},
	}
}

// StaffConsoleClient calls a remote StaffConsole.
type StaffConsoleClient struct {
	conn grpc.ClientConnInterface
}

// NewStaffConsoleClient wraps conn.
func NewStaffConsoleClient(conn grpc.ClientConnInterface) *StaffConsoleClient {
	return &StaffConsoleClient{conn: conn}
}

func (client *StaffConsoleClient) ApproveCheckout(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodApproveCheckout, request, options...)
}

func (client *StaffConsoleClient) RejectCheckout(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodRejectCheckout, request, options...)
}

func (client *StaffConsoleClient) ApproveTopup(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodApproveTopup, request, options...)
}

func (client *StaffConsoleClient) RejectTopup(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodRejectTopup, request, options...)
}

func (client *StaffConsoleClient) RunSweep(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodRunSweep, request, options...)
}

func (client *StaffConsoleClient) GetBalance(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodGetBalance, request, options...)
}

func (client *StaffConsoleClient) invoke(ctx context.Context, method string, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	if request == nil {
		request = &structpb.Struct{}
	}
	response := new(structpb.Struct)
	if err := client.conn.Invoke(ctx, "/"+ServiceName+"/"+method, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}
