// Package telemetry instruments run consumption with OTEL tracing and metrics
// and structured logging through goa.design/clue/log. Configure the global
// OTEL providers (for example via clue.ConfigureOpenTelemetry) before starting
// runs; with unconfigured providers every instrument is a no-op.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const scope = "goa.design/agentwire"

type (
	// RunMetrics records per-run counters: events applied, frames dropped at
	// the decode boundary, and streaming buffers force-closed by protocol
	// violations or terminal events.
	RunMetrics struct {
		events      metric.Int64Counter
		forceClosed metric.Int64Counter
		runsStarted metric.Int64Counter
		runsFailed  metric.Int64Counter
	}

	// Span wraps an OTEL span scoped to one run.
	Span struct {
		span trace.Span
	}
)

// NewRunMetrics constructs the run counters on the global MeterProvider.
func NewRunMetrics() *RunMetrics {
	meter := otel.Meter(scope)
	events, _ := meter.Int64Counter("agentwire.events.applied",
		metric.WithDescription("Canonical events applied by the reducer"))
	forceClosed, _ := meter.Int64Counter("agentwire.buffers.force_closed",
		metric.WithDescription("Streaming buffers force-closed before their END event"))
	runsStarted, _ := meter.Int64Counter("agentwire.runs.started",
		metric.WithDescription("Runs consumed"))
	runsFailed, _ := meter.Int64Counter("agentwire.runs.failed",
		metric.WithDescription("Runs terminated with an error"))
	return &RunMetrics{
		events:      events,
		forceClosed: forceClosed,
		runsStarted: runsStarted,
		runsFailed:  runsFailed,
	}
}

// RecordEvent counts one applied event of the given wire type.
func (m *RunMetrics) RecordEvent(ctx context.Context, eventType string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordForceClose counts a streaming buffer closed without its END event.
func (m *RunMetrics) RecordForceClose(ctx context.Context) {
	if m == nil || m.forceClosed == nil {
		return
	}
	m.forceClosed.Add(ctx, 1)
}

// RecordRunStarted counts a consumed run.
func (m *RunMetrics) RecordRunStarted(ctx context.Context) {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Add(ctx, 1)
}

// RecordRunFailed counts a run that terminated with an error.
func (m *RunMetrics) RecordRunFailed(ctx context.Context, code string) {
	if m == nil || m.runsFailed == nil {
		return
	}
	m.runsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("error.code", code)))
}

// StartRun opens a span covering the consumption of one run and annotates the
// logging context with the run identity.
func StartRun(ctx context.Context, threadID, runID string) (context.Context, *Span) {
	tracer := otel.Tracer(scope)
	ctx, span := tracer.Start(ctx, "agentwire.run",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("run.id", runID),
		))
	ctx = log.With(ctx, log.KV{K: "thread_id", V: threadID}, log.KV{K: "run_id", V: runID})
	return ctx, &Span{span: span}
}

// End closes the span, recording err as the terminal status when non-nil.
func (s *Span) End(err error) {
	if s == nil || s.span == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
