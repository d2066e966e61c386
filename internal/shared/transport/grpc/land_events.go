package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// LandEvents 只有一个 unary 方法，请求和响应都用 well-known 类型，不需要 protoc 生成代码。
const (
	LandEventsServiceName   = "landverse.world.LandEvents"
	LandEventsPublishMethod = "/" + LandEventsServiceName + "/Publish"
)

// LandEventsServer 接收 CRUD 服务推来的地块字段变更。
// 请求体是 {x, y, field, value}。
type LandEventsServer interface {
	Publish(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

var LandEventsServiceDesc = gogrpc.ServiceDesc{
	ServiceName: LandEventsServiceName,
	HandlerType: (*LandEventsServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{
			MethodName: "Publish",
			Handler:    landEventsPublishHandler,
		},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "landverse/world/land_events.proto",
}

func RegisterLandEventsServer(s gogrpc.ServiceRegistrar, srv LandEventsServer) {
	s.RegisterService(&LandEventsServiceDesc, srv)
}

func landEventsPublishHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LandEventsServer).Publish(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LandEventsPublishMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LandEventsServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type LandEventsClient struct {
	cc gogrpc.ClientConnInterface
}

func NewLandEventsClient(cc gogrpc.ClientConnInterface) *LandEventsClient {
	return &LandEventsClient{cc: cc}
}

// Publish 发送一条字段变更，value 必须能被 structpb 表示（数字、字符串、布尔、nil）。
func (c *LandEventsClient) Publish(ctx context.Context, x, y int, field string, value any, opts ...gogrpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{
		"x":     x,
		"y":     y,
		"field": field,
		"value": value,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, LandEventsPublishMethod, in, new(emptypb.Empty), opts...)
}
