package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that discards logs and spans and collects no
// metrics.
func Nop() *Telemetry {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	metrics, _ := NewMetrics(cfg.Metrics)
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  NopTracer(),
		Metrics: metrics,
		Config:  cfg,
	}
}

// WithContext adds the telemetry logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// InstrumentedContext carries the span, logger and timer of one render.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger

	tel       *Telemetry
	operation string
	timer     *Timer
}

// StartRender begins an instrumented render against handle.
func (t *Telemetry) StartRender(ctx context.Context, operation string, handle uint64, paths int) *InstrumentedContext {
	spanCtx, span := t.Tracer.StartRenderSpan(ctx, operation, handle, paths)

	logger := t.Logger.WithHandle(handle).WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:       logger.WithContext(spanCtx),
		Span:      span,
		Logger:    logger,
		tel:       t,
		operation: operation,
		timer:     NewTimer(),
	}
}

// End finishes the render, recording its outcome on the span and in the
// metrics.
func (ic *InstrumentedContext) End(status string, err error) {
	duration := ic.timer.Duration()
	ic.tel.Metrics.RecordRender(ic.operation, status, duration)

	ic.Span.SetAttributes(AttrStatus.String(status))
	if err != nil {
		RecordError(ic.Span, err)
		ic.Logger.WithError(err).WithField("status", status).Debug("render failed")
	} else {
		RecordSuccess(ic.Span)
		ic.Logger.WithField("duration", duration.String()).Debug("render completed")
	}
	ic.Span.End()
}
