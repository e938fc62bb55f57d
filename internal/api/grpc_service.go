package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// MonitorServiceName is the fully-qualified gRPC service name.
const MonitorServiceName = "equipmentmonitor.v1.Monitor"

// MonitorServer is the gRPC surface of the monitor. Requests and responses are
// google.protobuf.Struct documents shaped like the REST payloads.
type MonitorServer interface {
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetWindow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMonitorServer attaches srv to a gRPC registrar.
func RegisterMonitorServer(s grpc.ServiceRegistrar, srv MonitorServer) {
	s.RegisterService(&MonitorServiceDesc, srv)
}

type monitorMethod func(MonitorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call monitorMethod) grpc.MethodDesc {
	fullMethod := "/" + MonitorServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MonitorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MonitorServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// MonitorServiceDesc describes the Monitor service for grpc.Server registration.
var MonitorServiceDesc = grpc.ServiceDesc{
	ServiceName: MonitorServiceName,
	HandlerType: (*MonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetSnapshot", MonitorServer.GetSnapshot),
		unaryHandler("SelectDevice", MonitorServer.SelectDevice),
		unaryHandler("SetWindow", MonitorServer.SetWindow),
		unaryHandler("ListDevices", MonitorServer.ListDevices),
	},
	Streams: []grpc.StreamDesc{},
}

// MonitorClient invokes the Monitor service over a client connection.
type MonitorClient struct {
	cc grpc.ClientConnInterface
}

// NewMonitorClient wraps cc.
func NewMonitorClient(cc grpc.ClientConnInterface) *MonitorClient {
	return &MonitorClient{cc: cc}
}

func (c *MonitorClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+MonitorServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSnapshot calls Monitor/GetSnapshot.
func (c *MonitorClient) GetSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSnapshot", in, opts...)
}

// SelectDevice calls Monitor/SelectDevice.
func (c *MonitorClient) SelectDevice(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SelectDevice", in, opts...)
}

// SetWindow calls Monitor/SetWindow.
func (c *MonitorClient) SetWindow(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SetWindow", in, opts...)
}

// ListDevices calls Monitor/ListDevices.
func (c *MonitorClient) ListDevices(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListDevices", in, opts...)
}
