package cli

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/macropower/shelf/pkg/version"
)

// setupTracing exports spans to the OTLP gRPC endpoint. Without an endpoint,
// the global no-op provider is kept. The returned function flushes and stops
// the exporter.
func setupTracing(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		return func(context.Context) {}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cmdName),
		attribute.String("service.version", version.GetVersion()),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	slog.DebugContext(ctx, "tracing enabled", slog.String("endpoint", endpoint))

	return func(ctx context.Context) {
		err := tp.Shutdown(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "shutdown tracer provider", slog.Any("err", err))
		}
	}, nil
}
