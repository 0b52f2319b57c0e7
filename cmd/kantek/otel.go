package main

import (
	"context"
	"log/slog"

	"github.com/kantek-org/kantek/pkg/env"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Enables the OTLP HTTP exporter when an endpoint is configured. The exporter itself reads the standard OTEL_EXPORTER_OTLP_* environment variables. The returned func flushes and stops the exporter.
func setupOTEL(ctx context.Context, logger *slog.Logger, endpoint string) (func(), error) {
	if endpoint == "" {
		return func() {}, nil
	}
	logger.Info("setting up trace exporter", "endpoint", endpoint)

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("kantek"),
			attribute.String("version", env.Version()),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := flushTimeout()
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown trace exporter", "err", err)
		}
	}, nil
}
