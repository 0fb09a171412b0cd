// Package tracing records one trace per tick: a named span timeline plus
// the tick's summary metrics. The tracer keeps a bounded in-memory window
// for introspection (the overlay's trace viewer) and running aggregates;
// durable history lives in the journal (journal.go).
package tracing

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/sinain-hud/core/internal/model"
)

// MaxTraces bounds the in-memory rolling window.
const MaxTraces = 500

// Tracer keeps the last MaxTraces completed traces and running aggregates
// over them. Safe for concurrent use.
type Tracer struct {
	mu     sync.Mutex
	traces []model.Trace
	otel   oteltrace.Tracer // nil until SetOTel attaches a tracer
}

// NewTracer returns an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{traces: make([]model.Trace, 0, MaxTraces)}
}

// ActiveTrace accumulates spans for one in-flight tick. It is not safe for
// concurrent use; the tick engine's single-in-flight guard ensures only one
// exists at a time.
type ActiveTrace struct {
	tracer   *Tracer
	trace    model.Trace
	open     map[string]model.Span
	ctx      context.Context
	rootSpan oteltrace.Span
}

// Begin starts a new trace for tickID at nowMS. When the tracer has an
// OTel exporter attached, this also opens a root "tick" OTel span; each
// StartSpan/EndSpan pair is mirrored onto it as a timed event rather than
// as a separate child span, since spans here are opened and closed across
// a synchronous sequence of steps rather than concurrent sub-calls.
func (t *Tracer) Begin(tickID uint64, nowMS int64) *ActiveTrace {
	at := &ActiveTrace{
		tracer: t,
		trace: model.Trace{
			TraceID: uuid.NewString(),
			TickID:  tickID,
			TS:      nowMS,
			Spans:   make([]model.Span, 0, 8),
		},
		open: make(map[string]model.Span),
		ctx:  context.Background(),
	}

	t.mu.Lock()
	tr := t.otel
	t.mu.Unlock()
	if tr != nil {
		at.ctx, at.rootSpan = tr.Start(at.ctx, "tick")
	}
	return at
}

// StartSpan opens a span named name at nowMS. A second StartSpan with the
// same name before EndSpan overwrites the first's start time.
func (at *ActiveTrace) StartSpan(name string, nowMS int64) {
	at.open[name] = model.Span{Name: name, StartTS: nowMS}
}

// EndSpan closes the span named name, recording its end time, attributes,
// status and error. Ending a span that was never started is a no-op.
func (at *ActiveTrace) EndSpan(name string, nowMS int64, status model.SpanStatus, attrs map[string]interface{}, spanErr error) {
	span, ok := at.open[name]
	if !ok {
		return
	}
	delete(at.open, name)
	span.EndTS = nowMS
	span.Attributes = attrs
	span.Status = status
	if spanErr != nil {
		span.Error = spanErr.Error()
	}
	at.trace.Spans = append(at.trace.Spans, span)

	if at.rootSpan != nil {
		eventAttrs := attrsToOTel(attrs)
		eventAttrs = append(eventAttrs, attribute.String("span.status", string(status)))
		at.rootSpan.AddEvent(name, oteltrace.WithAttributes(eventAttrs...))
	}
}

// Finish records the tick's summary metrics, mirrors them onto the root
// OTel span if one is open, and commits the trace to the tracer's
// rolling window.
func (at *ActiveTrace) Finish(metrics model.TraceMetrics) model.Trace {
	at.trace.Metrics = metrics

	if at.rootSpan != nil {
		at.rootSpan.SetAttributes(attrsToOTel(map[string]interface{}{
			"tick.id":               at.trace.TickID,
			"tick.total_latency_ms": metrics.TotalLatencyMS,
			"tick.escalated":        metrics.Escalated,
			"tick.llm_cost":         metrics.LLMCost,
		})...)
		status := "ok"
		for _, span := range at.trace.Spans {
			if span.Status == model.SpanError {
				status = "error"
				break
			}
		}
		code, msg := statusToOTel(status, "")
		at.rootSpan.SetStatus(code, msg)
		at.rootSpan.End()
	}

	at.tracer.commit(at.trace)
	return at.trace
}

func (t *Tracer) commit(trace model.Trace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traces = append(t.traces, trace)
	if len(t.traces) > MaxTraces {
		t.traces = t.traces[len(t.traces)-MaxTraces:]
	}
}

// GetTraces returns traces with TickID > after, newest-last, truncated to
// limit entries from the tail (the most recent ones).
func (t *Tracer) GetTraces(after uint64, limit int) []model.Trace {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Trace, 0, len(t.traces))
	for _, tr := range t.traces {
		if tr.TickID > after {
			out = append(out, tr)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Stats is the tracer's running aggregate over its current window.
type Stats struct {
	Count          int
	LatencyP50MS   int
	LatencyP95MS   int
	AvgCostPerTick float64
	TotalCost      float64
}

// Stats computes the running aggregate over the current window.
func (t *Tracer) Stats() Stats {
	t.mu.Lock()
	traces := make([]model.Trace, len(t.traces))
	copy(traces, t.traces)
	t.mu.Unlock()

	if len(traces) == 0 {
		return Stats{}
	}

	latencies := make([]int, len(traces))
	var totalCost float64
	for i, tr := range traces {
		latencies[i] = int(tr.Metrics.TotalLatencyMS)
		totalCost += tr.Metrics.LLMCost
	}
	sort.Ints(latencies)

	return Stats{
		Count:          len(traces),
		LatencyP50MS:   percentile(latencies, 0.50),
		LatencyP95MS:   percentile(latencies, 0.95),
		AvgCostPerTick: totalCost / float64(len(traces)),
		TotalCost:      totalCost,
	}
}

// percentile expects a sorted slice.
func percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
