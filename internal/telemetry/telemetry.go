// Copyright (c) 2025 Justin Cranford

// Package telemetry wires structured logging and span creation for the
// core. Span export and the log-bridge backend are out of scope (spec
// §1); this package creates spans and log records against the
// OpenTelemetry SDK's no-op providers by default.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Service bundles the logger and tracer every component pulls from, the
// same "one struct, passed by reference, never imported ambiently"
// convention the credential store's telemetry service follows.
type Service struct {
	Slogger   *slog.Logger
	Tracer    trace.Tracer
	StartTime time.Time

	shutdownFns []func(context.Context) error
}

// New builds a Service for the named component. Logs fan out to a JSON
// handler and the OTel log bridge; verbose lowers the JSON handler to
// debug level and adds a debug-level text handler on stderr, otherwise
// the JSON handler runs at info level.
func New(ctx context.Context, serviceName string, verbose bool) (*Service, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context must be non-nil")
	}
	if serviceName == "" {
		return nil, fmt.Errorf("service name must be non-empty")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})

	tracerProvider := noop.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	tracer := tracerProvider.Tracer(serviceName)

	bridgeHandler := otelslog.NewHandler(serviceName)

	handlers := []slog.Handler{jsonHandler, bridgeHandler}
	if verbose {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	fanout := slogmulti.Fanout(handlers...)
	logger := slog.New(fanout).With("service", serviceName)

	return &Service{
		Slogger:   logger,
		Tracer:    tracer,
		StartTime: time.Now().UTC(),
	}, nil
}

// OnShutdown registers a cleanup function run (in registration order) by
// Shutdown. Used to flush exporters wired in later without this package
// needing to know about them.
func (s *Service) OnShutdown(fn func(context.Context) error) {
	s.shutdownFns = append(s.shutdownFns, fn)
}

func (s *Service) Shutdown(ctx context.Context) {
	for _, fn := range s.shutdownFns {
		if err := fn(ctx); err != nil {
			s.Slogger.Error("telemetry shutdown hook failed", "error", err)
		}
	}
}

// StartSpan wraps tracer.Start so callers don't import otel/trace
// directly. The flow executor does not call it; no flow-node lifecycle
// call is wrapped in a span.
func (s *Service) StartSpan(ctx context.Context, name string, attrs ...any) (context.Context, trace.Span) {
	spanCtx, span := s.Tracer.Start(ctx, name)
	if len(attrs) > 0 {
		s.Slogger.DebugContext(spanCtx, name, attrs...)
	}
	return spanCtx, span
}
