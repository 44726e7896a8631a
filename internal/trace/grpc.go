package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryServerInterceptor continues the caller's trace for incoming unary
// calls, or starts a new one, and logs each call as a span. The span ids
// are returned to the caller as response headers.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := startFromMetadata(ctx, info.FullMethod)
		_ = grpc.SetHeader(ctx, metadata.New(span.Ctx.ToMap()))
		resp, err := handler(ctx, req)
		span.SetError(err)
		span.End()
		return resp, err
	}
}

// StreamServerInterceptor does the same for streaming calls.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, span := startFromMetadata(ss.Context(), info.FullMethod)
		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		span.SetError(err)
		span.End()
		return err
	}
}

func startFromMetadata(ctx context.Context, method string) (context.Context, *Span) {
	m := map[string]string{}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, key := range []string{TraceIDKey, SpanIDKey} {
			if v := md.Get(key); len(v) > 0 {
				m[key] = v[0]
			}
		}
	}
	tc := FromMap(m)
	ctx, span := StartSpan(WithContext(ctx, tc), method)
	return ctx, span
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }
