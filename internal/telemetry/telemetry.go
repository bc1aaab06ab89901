package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "github.com/irfndi/celebrum-sim"
	ServiceVersion = "1.0.0"

	// Exporters
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNone   = "none"
)

// TelemetryConfig holds configuration for tracing
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Exporter       string        `mapstructure:"exporter"`
	OutputPath     string        `mapstructure:"output_path"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool          `mapstructure:"otlp_insecure"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Environment    string        `mapstructure:"environment"`
	SampleRate     float64       `mapstructure:"sample_rate"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatch int           `mapstructure:"max_export_batch"`
	MaxQueueSize   int           `mapstructure:"max_queue_size"`
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:        false,
		Exporter:       ExporterStdout,
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "development",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
	}
}

// Provider holds the installed tracer provider
type Provider struct {
	Shutdown func(context.Context) error
}

// InitTelemetryWithProvider installs a global tracer provider. When tracing
// is disabled the returned provider is a no-op. Spans go to w, or to the
// configured output path when w is nil.
func InitTelemetryWithProvider(ctx context.Context, config *TelemetryConfig, w io.Writer, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := &Provider{Shutdown: func(context.Context) error { return nil }}

	if config == nil || !config.Enabled || strings.EqualFold(config.Exporter, ExporterNone) {
		return noop, nil
	}

	exporter, closer, err := newExporter(ctx, config, w)
	if err != nil {
		return nil, err
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = ServiceName
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", config.ServiceVersion),
		attribute.String("deployment.environment", config.Environment),
	)

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if config.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(config.BatchTimeout))
	}
	if config.MaxExportBatch > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(config.MaxExportBatch))
	}
	if config.MaxQueueSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(config.MaxQueueSize))
	}

	rate := config.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Tracing initialized", "exporter", config.Exporter, "service", serviceName)

	return &Provider{
		Shutdown: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if closer != nil {
				if cerr := closer.Close(); err == nil {
					err = cerr
				}
			}
			return err
		},
	}, nil
}

// newExporter builds the span exporter named by config. The closer, if any,
// releases the trace output file.
func newExporter(ctx context.Context, config *TelemetryConfig, w io.Writer) (sdktrace.SpanExporter, io.Closer, error) {
	switch strings.ToLower(config.Exporter) {
	case ExporterOTLP:
		if config.OTLPEndpoint == "" {
			return nil, nil, fmt.Errorf("otlp exporter requires an endpoint")
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLPEndpoint)}
		if config.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exporter, nil, nil

	case ExporterStdout, "":
		var closer io.Closer
		if w == nil {
			if config.OutputPath == "" {
				w = os.Stderr
			} else {
				f, err := os.Create(config.OutputPath)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to open trace output: %w", err)
				}
				w, closer = f, f
			}
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		return exporter, closer, nil

	default:
		return nil, nil, fmt.Errorf("unsupported trace exporter %q", config.Exporter)
	}
}

// GetTracer returns a named tracer from the global provider
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// GetSimulationTracer returns the tracer used by the simulator
func GetSimulationTracer() trace.Tracer {
	return GetTracer(ServiceName + "/simulation")
}

// StartSpan starts a span with the given tracer
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordError records an error on a span and marks it failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StringAttribute builds a string span attribute
func StringAttribute(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Int64Attribute builds an integer span attribute
func Int64Attribute(key string, value int64) attribute.KeyValue {
	return attribute.Int64(key, value)
}
