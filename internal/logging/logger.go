package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger defines the structured logging methods used across the simulator
type Logger interface {
	WithComponent(componentName string) *slog.Logger
	WithBatchID(batchID string) *slog.Logger
	WithRunID(runID int) *slog.Logger
	WithError(err error) *slog.Logger
	LogStartup(serviceName string, version string)
	LogShutdown(serviceName string, reason string)
	LogResourceStats(serviceName string, stats map[string]interface{})
	LogBusinessEvent(eventType string, details map[string]interface{})
	Logger() *slog.Logger
}

// StandardLogger provides a standardized logging interface
type StandardLogger struct {
	logger Logger
}

// NewStandardLoggerWithHandler wraps an existing slog handler, e.g. one
// returned by OTLPLogger.Attach.
func NewStandardLoggerWithHandler(handler slog.Handler) *StandardLogger {
	return &StandardLogger{logger: &slogLogger{logger: slog.New(handler)}}
}

// NewHandler returns the text handler in development and JSON elsewhere.
func NewHandler(w io.Writer, logLevel string, environment string) slog.Handler {
	opts := &slog.HandlerOptions{Level: getSlogLevel(logLevel)}
	if strings.EqualFold(environment, "development") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// WithComponent creates a logger with component context
func (l *StandardLogger) WithComponent(componentName string) *slog.Logger {
	return l.logger.WithComponent(componentName)
}

// WithBatchID creates a logger scoped to one multi-run simulation
func (l *StandardLogger) WithBatchID(batchID string) *slog.Logger {
	return l.logger.WithBatchID(batchID)
}

// WithRunID creates a logger scoped to one trajectory
func (l *StandardLogger) WithRunID(runID int) *slog.Logger {
	return l.logger.WithRunID(runID)
}

// WithError creates a logger with error context
func (l *StandardLogger) WithError(err error) *slog.Logger {
	return l.logger.WithError(err)
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string) {
	l.logger.LogStartup(serviceName, version)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.LogShutdown(serviceName, reason)
}

// LogResourceStats logs resource statistics in a standardized format
func (l *StandardLogger) LogResourceStats(serviceName string, stats map[string]interface{}) {
	l.logger.LogResourceStats(serviceName, stats)
}

// LogBusinessEvent logs business events in a standardized format
func (l *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	l.logger.LogBusinessEvent(eventType, details)
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger.Logger()
}

// NewLogrusLogger returns a logrus logger for the services layer. Non
// development environments log JSON.
func NewLogrusLogger(logLevel string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLogrusLevel(logLevel))
	if !strings.EqualFold(environment, "development") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// getSlogLevel converts string level to slog.Level
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// slogLogger is the default Logger implementation backed by slog
type slogLogger struct {
	logger *slog.Logger
}

func (s *slogLogger) WithComponent(componentName string) *slog.Logger {
	return s.logger.With("component", componentName)
}

func (s *slogLogger) WithBatchID(batchID string) *slog.Logger {
	return s.logger.With("batch_id", batchID)
}

func (s *slogLogger) WithRunID(runID int) *slog.Logger {
	return s.logger.With("run_id", runID)
}

func (s *slogLogger) WithError(err error) *slog.Logger {
	return s.logger.With("error", err.Error())
}

func (s *slogLogger) LogStartup(serviceName string, version string) {
	s.logger.Info("Application startup",
		"service", serviceName,
		"version", version,
		"event", "startup",
	)
}

func (s *slogLogger) LogShutdown(serviceName string, reason string) {
	s.logger.Info("Application shutdown",
		"service", serviceName,
		"reason", reason,
		"event", "shutdown",
	)
}

func (s *slogLogger) LogResourceStats(serviceName string, stats map[string]interface{}) {
	s.logger.Info("Resource statistics",
		"service", serviceName,
		"stats", stats,
		"event", "resource",
	)
}

func (s *slogLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	s.logger.Info("Business event",
		"event_type", eventType,
		"details", details,
		"event", "business",
	)
}

func (s *slogLogger) Logger() *slog.Logger {
	return s.logger
}
