package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/firesat/internal/logging"
)

var healthCheck = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func TestRequestIDInterceptorUsesInboundMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc-123"))

	var got string
	_, err := interceptor(ctx, nil, healthCheck, func(ctx context.Context, _ any) (any, error) {
		got = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", got)
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())

	var id string
	var hasLogger bool
	_, _ = interceptor(context.Background(), nil, healthCheck, func(ctx context.Context, _ any) (any, error) {
		id = logging.RequestIDFromContext(ctx)
		hasLogger = logging.FromContext(ctx, nil) != nil
		return nil, nil
	})
	if id == "" {
		t.Fatalf("no request id generated")
	}
	if !hasLogger {
		t.Fatalf("request logger missing from context")
	}
}

func TestSpanAttributesInterceptor(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx, span := tp.Tracer("test").Start(context.Background(), "rpc")
	ctx = logging.ContextWithRequestID(ctx, "req-1")

	boom := errors.New("boom")
	_, err := SpanAttributesUnaryServerInterceptor()(ctx, nil, healthCheck, func(context.Context, any) (any, error) {
		return nil, boom
	})
	span.End()
	if !errors.Is(err, boom) {
		t.Fatalf("interceptor error = %v", err)
	}

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans", len(ended))
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs["rpc.service"] != "Health" || attrs["rpc.method"] != "Check" || attrs["request_id"] != "req-1" {
		t.Fatalf("span attributes = %v", attrs)
	}
	if len(ended[0].Events()) == 0 {
		t.Fatalf("error not recorded on span")
	}
}
