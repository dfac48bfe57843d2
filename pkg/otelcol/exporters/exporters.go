package exporters

import (
	"context"
	"strings"
	"time"

	"smallbiznis-challenge/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

const dialTimeout = 10 * time.Second

// New builds the OTLP span exporter for OTEL.ADDR. OTEL.PROTOCOL selects
// "http"; anything else uses gRPC.
func New(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if strings.EqualFold(cfg.Otel.Protocol, "http") {
		return otlptrace.New(ctx, httpClient(cfg))
	}
	return otlptrace.New(ctx, grpcClient(cfg))
}

func httpClient(cfg *config.Config) otlptrace.Client {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Otel.Addr),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithTimeout(dialTimeout),
	}
	if !cfg.TLS.Enable {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.NewClient(opts...)
}

func grpcClient(cfg *config.Config) otlptrace.Client {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
		otlptracegrpc.WithCompressor("gzip"),
		otlptracegrpc.WithTimeout(dialTimeout),
	}
	if !cfg.TLS.Enable {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.NewClient(opts...)
}
