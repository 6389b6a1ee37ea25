// Package remote adapts the cargo.space DataService gRPC contract to the
// data-access core: Client runs queries for the query executor and opens
// change streams for the realtime multiplexer.
package remote

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified DataService name, also used as the
// gRPC health service name.
const ServiceName = "cargospace.data.v1.DataService"

const (
	// ExecuteMethod is the unary query method.
	ExecuteMethod = "/" + ServiceName + "/Execute"
	// SubscribeMethod is the server-streaming change feed.
	SubscribeMethod = "/" + ServiceName + "/Subscribe"
)

// DataServiceServer is implemented by backends serving DataService.
type DataServiceServer interface {
	Execute(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error)
	Subscribe(request *structpb.Struct, stream SubscribeServer) error
}

// SubscribeServer is the server side of one Subscribe stream.
type SubscribeServer interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// RegisterDataServiceServer registers srv on registrar.
func RegisterDataServiceServer(registrar gogrpc.ServiceRegistrar, srv DataServiceServer) {
	registrar.RegisterService(&DataServiceDesc, srv)
}

// DataServiceDesc describes DataService for grpc.Server. Messages are
// google.protobuf.Struct values, so no generated stubs are needed.
var DataServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DataServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams: []gogrpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "cargospace/data/v1/data.proto",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataServiceServer).Execute(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: ExecuteMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataServiceServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream gogrpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DataServiceServer).Subscribe(in, &subscribeServerStream{stream})
}

type subscribeServerStream struct {
	gogrpc.ServerStream
}

func (s *subscribeServerStream) Send(msg *structpb.Struct) error {
	return s.ServerStream.SendMsg(msg)
}
