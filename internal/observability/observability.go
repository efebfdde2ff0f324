// Package observability configures process-wide logging.
//
// Records go to the console at the configured level and, through the
// OpenTelemetry log SDK, to a rotated file at debug level. Setting
// OTEL_EXPORTER_OTLP_ENDPOINT additionally exports records over OTLP.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// LogFileName is the rotated log file inside the log directory.
	LogFileName = "reyrey-auth.log"

	instrumentationName = "github.com/florianilch/reyrey-auth"

	maxLogSizeMB  = 10
	maxLogBackups = 5
	maxLogAgeDays = 30

	otlpEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	otlpProtocol = "OTEL_EXPORTER_OTLP_PROTOCOL"
	protocolGRPC = "grpc"

	formatJSON = "json"
	formatText = "text"
)

// ShutdownFunc flushes and releases logging resources.
type ShutdownFunc func(context.Context) error

// Option configures Instrument.
type Option func(*options)

type options struct {
	console io.Writer
	environ func(string) string
}

// WithConsole sets where console records are written. Defaults to stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// WithGetenv sets how OTLP settings are read. Defaults to os.Getenv.
func WithGetenv(getenv func(string) string) Option {
	return func(o *options) {
		o.environ = getenv
	}
}

// Instrument installs the default slog logger.
// An empty logDir disables the file log. The returned function flushes
// pending records and must be called before exit.
func Instrument(ctx context.Context, level, format, logDir string, opts ...Option) (ShutdownFunc, error) {
	o := &options{console: os.Stderr, environ: os.Getenv}
	for _, opt := range opts {
		opt(o)
	}

	consoleLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	console, err := consoleHandler(o.console, format, consoleLevel)
	if err != nil {
		return nil, err
	}

	processors, closers, err := processors(ctx, logDir, o.environ)
	if err != nil {
		return nil, err
	}

	if len(processors) == 0 {
		slog.SetDefault(slog.New(console))
		return func(context.Context) error { return nil }, nil
	}

	providerOpts := make([]sdklog.LoggerProviderOption, 0, len(processors))
	for _, p := range processors {
		providerOpts = append(providerOpts, sdklog.WithProcessor(p))
	}
	provider := sdklog.NewLoggerProvider(providerOpts...)
	global.SetLoggerProvider(provider)

	otelHandler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(newFanout(console, otelHandler)))

	return func(ctx context.Context) error {
		errs := []error{provider.Shutdown(ctx)}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}, nil
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	if level == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

func consoleHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case formatText, "":
		return slog.NewTextHandler(w, opts), nil
	case formatJSON:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want %s or %s)", format, formatText, formatJSON)
	}
}

// processors builds the log pipelines: a debug-level rotated file and an
// optional OTLP exporter.
func processors(ctx context.Context, logDir string, getenv func(string) string) ([]sdklog.Processor, []io.Closer, error) {
	var (
		procs   []sdklog.Processor
		closers []io.Closer
	)

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		file := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, LogFileName),
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
		}
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(file))
		if err != nil {
			return nil, nil, fmt.Errorf("creating file log exporter: %w", err)
		}

		procs = append(procs, minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minsev.SeverityDebug))
		closers = append(closers, file)
	}

	if getenv(otlpEndpoint) != "" {
		exporter, err := otlpExporter(ctx, getenv(otlpProtocol))
		if err != nil {
			return nil, nil, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		procs = append(procs, minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minsev.SeverityInfo))
	}

	return procs, closers, nil
}

// otlpExporter reads its endpoint and headers from the standard OTEL_* variables.
func otlpExporter(ctx context.Context, protocol string) (sdklog.Exporter, error) {
	if protocol == protocolGRPC {
		return otlploggrpc.New(ctx)
	}
	return otlploghttp.New(ctx)
}
