package telemetry

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "openmotioncore.telemetry.v1.Telemetry"

const (
	getStatusMethod = "/" + ServiceName + "/GetStatus"
	watchAxesMethod = "/" + ServiceName + "/WatchAxes"
)

// TelemetryServer is the server API of the Telemetry service.
type TelemetryServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchAxes(*emptypb.Empty, Telemetry_WatchAxesServer) error
}

type Telemetry_WatchAxesServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchAxesServer struct {
	grpc.ServerStream
}

func (x *watchAxesServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getStatusMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TelemetryServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchAxesHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TelemetryServer).WatchAxes(m, &watchAxesServer{stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchAxes",
			Handler:       watchAxesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "telemetry.proto",
}

func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the client API of the Telemetry service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type WatchAxesClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type watchAxesClient struct {
	grpc.ClientStream
}

func (x *watchAxesClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) WatchAxes(ctx context.Context, opts ...grpc.CallOption) (WatchAxesClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], watchAxesMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &watchAxesClient{stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
