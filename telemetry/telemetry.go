// Package telemetry wraps OpenTelemetry tracing and metrics behind a
// small surface so the engine and its executors can emit spans and
// counters without depending on the SDK directly outside this package.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "gomind-flow/flowcore"

// Tracer returns the package-wide tracer. Call sites name their own
// spans; this just centralizes the instrumentation name.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span and returns the derived context and span,
// matching the teacher's tracer.Start/defer span.End() shape.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordSpanError marks the span as errored and attaches err, mirroring
// the teacher's span.RecordError/span.SetStatus pairing.
func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddSpanEvent adds a named event with attributes to the current span.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Metrics bundles the counters and histograms the engine emits. A zero
// value is safe to use: every method becomes a no-op if instruments were
// never initialized via NewMetrics.
type Metrics struct {
	stepAttempts    metric.Int64Counter
	stepDurationMS  metric.Float64Histogram
	workflowRuns    metric.Int64Counter
	workflowResults metric.Int64Counter
}

// NewMetrics creates the instrument set against the global MeterProvider.
// Call once per process and share the result.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	stepAttempts, err := meter.Int64Counter("flowcore.step.attempts",
		metric.WithDescription("number of step dispatches; retries within one dispatch are not counted separately"))
	if err != nil {
		return nil, err
	}
	stepDurationMS, err := meter.Float64Histogram("flowcore.step.duration_ms",
		metric.WithDescription("wall time of one step dispatch, including all its retry attempts, in milliseconds"))
	if err != nil {
		return nil, err
	}
	workflowRuns, err := meter.Int64Counter("flowcore.workflow.runs",
		metric.WithDescription("number of workflow runs started"))
	if err != nil {
		return nil, err
	}
	workflowResults, err := meter.Int64Counter("flowcore.workflow.results",
		metric.WithDescription("number of workflow runs completed, by outcome"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		stepAttempts:    stepAttempts,
		stepDurationMS:  stepDurationMS,
		workflowRuns:    workflowRuns,
		workflowResults: workflowResults,
	}, nil
}

func (m *Metrics) RecordStepAttempt(ctx context.Context, stepID, kind string) {
	if m == nil || m.stepAttempts == nil {
		return
	}
	m.stepAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step_id", stepID), attribute.String("step_kind", kind)))
}

func (m *Metrics) RecordStepDuration(ctx context.Context, stepID, kind string, start time.Time) {
	if m == nil || m.stepDurationMS == nil {
		return
	}
	m.stepDurationMS.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("step_id", stepID), attribute.String("step_kind", kind)))
}

func (m *Metrics) RecordWorkflowRun(ctx context.Context, workflowID string) {
	if m == nil || m.workflowRuns == nil {
		return
	}
	m.workflowRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow_id", workflowID)))
}

func (m *Metrics) RecordWorkflowResult(ctx context.Context, workflowID, outcome string) {
	if m == nil || m.workflowResults == nil {
		return
	}
	m.workflowResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID), attribute.String("outcome", outcome)))
}
