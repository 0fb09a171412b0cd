package tracing

import (
	"testing"

	"github.com/sinain-hud/core/internal/model"
)

func TestTracer_GetTracesFiltersByTickID(t *testing.T) {
	tr := NewTracer()
	for i := uint64(1); i <= 3; i++ {
		at := tr.Begin(i, int64(i)*1000)
		at.StartSpan("llmCall", int64(i)*1000)
		at.EndSpan("llmCall", int64(i)*1000+50, model.SpanOK, nil, nil)
		at.Finish(model.TraceMetrics{TotalLatencyMS: 50})
	}

	got := tr.GetTraces(1, 10)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TickID != 2 || got[1].TickID != 3 {
		t.Fatalf("got ticks %d, %d, want 2, 3", got[0].TickID, got[1].TickID)
	}
}

func TestTracer_WindowCapsAt500(t *testing.T) {
	tr := NewTracer()
	for i := uint64(1); i <= uint64(MaxTraces+10); i++ {
		at := tr.Begin(i, 0)
		at.Finish(model.TraceMetrics{})
	}
	stats := tr.Stats()
	if stats.Count != MaxTraces {
		t.Fatalf("Count = %d, want %d", stats.Count, MaxTraces)
	}
}

func TestTracer_StatsComputesCountAndCost(t *testing.T) {
	tr := NewTracer()
	latencies := []int{100, 200, 300, 400, 500}
	for i, lat := range latencies {
		at := tr.Begin(uint64(i+1), 0)
		at.Finish(model.TraceMetrics{TotalLatencyMS: int64(lat), LLMCost: 0.01})
	}
	stats := tr.Stats()
	if stats.Count != 5 {
		t.Fatalf("Count = %d, want 5", stats.Count)
	}
	if stats.TotalCost < 0.0499 || stats.TotalCost > 0.0501 {
		t.Fatalf("TotalCost = %v, want ~0.05", stats.TotalCost)
	}
}
