package otelcol

import (
	"context"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(NewTracerProvider),
)

func traceProviderOptions(cfg *config.Config) []sdktrace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// NewTracerProvider installs the global tracer provider. Spans are exported over
// OTLP when OTEL.ADDR is set (OTEL.PROTOCOL "http" or "grpc", default grpc).
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	if cfg.Otel.Addr != "" {
		exp, err := exporters.New(cfg)
		if err != nil {
			zap.L().Error("failed to create trace exporter", zap.String("addr", cfg.Otel.Addr), zap.Error(err))
			return nil, err
		}
		exporter = exp
	}

	tp := ProvideTrace(exporter, traceProviderOptions(cfg)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}
