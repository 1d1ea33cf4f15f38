// Package observability configures OpenTelemetry tracing for the API and the
// drill engine.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"
)

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const (
	defaultServiceName = "rangedrill-api"
	batchTimeout       = 5 * time.Second
)

// TracingConfig selects the span exporter.
type TracingConfig struct {
	ServiceName string
	Version     string
	Exporter    string
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string
	Insecure bool
	// SampleRatio applies to root spans; zero means sample everything.
	SampleRatio float64
	// Writer receives stdout spans; os.Stdout when nil.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// InitTracing installs a global tracer provider and W3C propagators. The
// "none" exporter installs a provider without exporters so spans are still
// created but never leave the process.
func InitTracing(ctx context.Context, cfg TracingConfig, logger *zap.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
		),
	)
	if err != nil {
		logger.Warn("otel resource init failed (continuing)", zap.Error(err))
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
	}
	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		options = append(options, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)))
	}

	provider := sdktrace.NewTracerProvider(options...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("otel tracing initialized",
		zap.String("service", serviceName),
		zap.String("exporter", exporterName(cfg.Exporter)),
		zap.String("endpoint", cfg.Endpoint))
	return provider.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch exporterName(cfg.Exporter) {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		writer := cfg.Writer
		if writer == nil {
			writer = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(writer))
	case ExporterOTLP:
		endpoint := strings.TrimSpace(cfg.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("otlp exporter requires an endpoint")
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

func exporterName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return ExporterNone
	}
	return name
}

func sampleRatio(ratio float64) float64 {
	switch {
	case ratio <= 0:
		return 1
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
