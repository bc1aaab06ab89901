package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTLPConfig holds configuration for OpenTelemetry log export
type OTLPConfig struct {
	Enabled        bool
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string
}

// OTLPLogger ships log records to an OTLP/HTTP collector next to the
// regular stderr output. A disabled OTLPLogger leaves every logger untouched.
type OTLPLogger struct {
	name     string
	handler  slog.Handler
	provider *sdklog.LoggerProvider
}

// NewOTLPLogger creates the OTLP log pipeline described by config
func NewOTLPLogger(ctx context.Context, config OTLPConfig) (*OTLPLogger, error) {
	if !config.Enabled {
		return &OTLPLogger{}, nil
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("otlp log exporter requires an endpoint")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	return newOTLPLogger(config, sdklog.NewBatchProcessor(exporter)), nil
}

func newOTLPLogger(config OTLPConfig, processor sdklog.Processor) *OTLPLogger {
	res := resource.NewSchemaless(
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	)

	return &OTLPLogger{
		name:     config.ServiceName,
		handler:  NewOTLPHandler(provider.Logger(config.ServiceName), getSlogLevel(config.LogLevel)),
		provider: provider,
	}
}

// Enabled reports whether records are exported
func (l *OTLPLogger) Enabled() bool {
	return l.provider != nil
}

// Attach returns h extended to also export every record it accepts
func (l *OTLPLogger) Attach(h slog.Handler) slog.Handler {
	if l.handler == nil {
		return h
	}
	return &fanoutHandler{handlers: []slog.Handler{h, l.handler}}
}

// AttachLogrus forwards the entries of a logrus logger as well
func (l *OTLPLogger) AttachLogrus(logger *logrus.Logger) {
	if l.provider == nil {
		return
	}
	logger.AddHook(&otlpHook{logger: l.provider.Logger(l.name)})
}

// Shutdown flushes pending records and stops the exporter
func (l *OTLPLogger) Shutdown(ctx context.Context) error {
	if l.provider == nil {
		return nil
	}
	return l.provider.Shutdown(ctx)
}

// OTLPHandler implements slog.Handler on top of an OpenTelemetry logger
type OTLPHandler struct {
	logger otellog.Logger
	level  slog.Leveler
	attrs  []otellog.KeyValue
	prefix string
}

// NewOTLPHandler creates a new OTLPHandler emitting records at or above level
func NewOTLPHandler(logger otellog.Logger, level slog.Leveler) *OTLPHandler {
	return &OTLPHandler{logger: logger, level: level}
}

// Enabled implements slog.Handler.Enabled
func (h *OTLPHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.Handle
func (h *OTLPHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := append([]otellog.KeyValue(nil), h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, h.prefix, a)
		return true
	})

	var rec otellog.Record
	rec.SetTimestamp(record.Time)
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(slogSeverity(record.Level))
	rec.SetSeverityText(record.Level.String())
	rec.SetBody(otellog.StringValue(record.Message))
	rec.AddAttributes(attrs...)

	h.logger.Emit(ctx, rec)
	return nil
}

// WithAttrs implements slog.Handler.WithAttrs
func (h *OTLPHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]otellog.KeyValue(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = appendAttr(clone.attrs, h.prefix, a)
	}
	return &clone
}

// WithGroup implements slog.Handler.WithGroup
func (h *OTLPHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// appendAttr flattens groups into dotted keys.
func appendAttr(out []otellog.KeyValue, prefix string, a slog.Attr) []otellog.KeyValue {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return out
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			out = appendAttr(out, prefix, g)
		}
		return out
	}
	return append(out, otellog.KeyValue{Key: prefix + a.Key, Value: otelValue(a.Value)})
}

func otelValue(v slog.Value) otellog.Value {
	switch v.Kind() {
	case slog.KindBool:
		return otellog.BoolValue(v.Bool())
	case slog.KindInt64:
		return otellog.Int64Value(v.Int64())
	case slog.KindUint64:
		return otellog.Int64Value(int64(v.Uint64()))
	case slog.KindFloat64:
		return otellog.Float64Value(v.Float64())
	default:
		return otellog.StringValue(v.String())
	}
}

func slogSeverity(level slog.Level) otellog.Severity {
	switch {
	case level < slog.LevelInfo:
		return otellog.SeverityDebug
	case level < slog.LevelWarn:
		return otellog.SeverityInfo
	case level < slog.LevelError:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityError
	}
}

// otlpHook forwards logrus entries to an OpenTelemetry logger
type otlpHook struct {
	logger otellog.Logger
}

func (h *otlpHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *otlpHook) Fire(entry *logrus.Entry) error {
	var rec otellog.Record
	rec.SetTimestamp(entry.Time)
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(logrusSeverity(entry.Level))
	rec.SetSeverityText(entry.Level.String())
	rec.SetBody(otellog.StringValue(entry.Message))
	for k, v := range entry.Data {
		rec.AddAttributes(otellog.String(k, fmt.Sprint(v)))
	}

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, rec)
	return nil
}

func logrusSeverity(level logrus.Level) otellog.Severity {
	switch level {
	case logrus.TraceLevel:
		return otellog.SeverityTrace
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	default:
		return otellog.SeverityFatal
	}
}

// fanoutHandler passes each record to every handler that accepts it
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}
