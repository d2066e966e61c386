package grpc

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"LandVerse/modules/kit/logx"
)

// NewServer 创建带 trace 和访问日志拦截器的 grpc 服务端。
func NewServer(l logx.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerAccessInterceptor(l)),
		grpc.ChainStreamInterceptor(StreamServerTraceInterceptor()),
	}, opts...)
	return grpc.NewServer(opts...)
}

// DialLandEvents 建立 LandEvents grpc 连接并返回 typed client。
func DialLandEvents(target string, extra ...grpc.DialOption) (*grpc.ClientConn, *LandEventsClient, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(UnaryClientTraceInterceptor()),
		grpc.WithChainStreamInterceptor(StreamClientTraceInterceptor()),
	}
	// grpc.NewClient 不会立刻拨号，连接在第一次调用时建立
	conn, err := grpc.NewClient(target, append(opts, extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial land events failed: %w", err)
	}
	return conn, NewLandEventsClient(conn), nil
}
