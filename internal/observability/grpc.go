package observability

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// UnaryClientInterceptor records the latency of every unary call.
func (m *Metrics) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		m.RecordRPCLatency(method, time.Since(start).Seconds())
		return err
	}
}
