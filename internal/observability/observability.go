// Package observability configures the process-wide logging pipeline.
//
// Logs always flow through log/slog. The handler behind it depends on the
// configured format and environment:
//   - "text" and "json": plain console handlers on stderr
//   - "otel": OpenTelemetry log records pretty-printed to stdout, useful
//     for inspecting what an OTLP collector would receive
//   - OTEL_EXPORTER_OTLP_ENDPOINT set: records are shipped to the
//     collector over gRPC or HTTP per OTEL_EXPORTER_OTLP_PROTOCOL
//
// All OpenTelemetry paths share a severity filter so the configured level
// applies regardless of the exporter.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

const loggerName = "authgate"

// Instrument installs the default slog logger for the given level and
// format, and routes OpenTelemetry SDK errors into it.
func Instrument(level slog.Level, format string) error {
	handler, err := newHandler(level, format)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(withTraceContext(handler)))

	// SDK-internal failures (e.g. a collector going away) must not crash or
	// silently disappear.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Warn("opentelemetry error", "error", err)
	}))

	return nil
}

func newHandler(level slog.Level, format string) (slog.Handler, error) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return newOTLPHandler(level)
	}

	switch format {
	case "json":
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}), nil
	case "otel":
		return newStdoutHandler(level)
	case "", "text":
		return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// newOTLPHandler ships log records to the collector configured through the
// standard OTEL_EXPORTER_OTLP_* environment variables.
func newOTLPHandler(level slog.Level) (slog.Handler, error) {
	ctx := context.Background()

	var exporter sdklog.Exporter
	var err error
	switch os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
	case "grpc":
		exporter, err = otlploggrpc.New(ctx)
	default:
		exporter, err = otlploghttp.New(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
	}

	return bridge(sdklog.NewBatchProcessor(exporter), level), nil
}

// newStdoutHandler pretty-prints OpenTelemetry log records to stdout.
func newStdoutHandler(level slog.Level) (slog.Handler, error) {
	exporter, err := stdoutlog.New(stdoutlog.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating stdout log exporter: %w", err)
	}

	// Simple processor: stdout is for interactive debugging, batching would
	// only delay output
	return bridge(sdklog.NewSimpleProcessor(exporter), level), nil
}

func bridge(processor sdklog.Processor, level slog.Level) slog.Handler {
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(level))),
	)
	return otelslog.NewHandler(loggerName, otelslog.WithLoggerProvider(provider))
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// traceContextHandler stamps records with the active span context so logs
// can be correlated with traces from surrounding tooling.
type traceContextHandler struct {
	slog.Handler
}

func withTraceContext(handler slog.Handler) slog.Handler {
	return &traceContextHandler{Handler: handler}
}

func (h *traceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, record)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{Handler: h.Handler.WithGroup(name)}
}
