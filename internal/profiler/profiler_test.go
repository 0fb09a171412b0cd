package profiler

import (
	"errors"
	"testing"
	"time"
)

func TestProfiler_GaugeLastWriteWins(t *testing.T) {
	p := New()
	p.Gauge("feed.size", 3)
	p.Gauge("feed.size", 7)
	if got := p.Gauges()["feed.size"]; got != 7 {
		t.Fatalf("Gauges()[feed.size] = %v, want 7", got)
	}
}

func TestProfiler_TimerRecordAggregates(t *testing.T) {
	p := New()
	p.TimerRecord("tick", 100*time.Millisecond)
	p.TimerRecord("tick", 300*time.Millisecond)
	p.TimerRecord("tick", 50*time.Millisecond)

	stats := p.Timers()["tick"]
	if stats.Count != 3 {
		t.Fatalf("Count = %d, want 3", stats.Count)
	}
	if stats.TotalMS != 450 {
		t.Fatalf("TotalMS = %d, want 450", stats.TotalMS)
	}
	if stats.LastMS != 50 {
		t.Fatalf("LastMS = %d, want 50", stats.LastMS)
	}
	if stats.MaxMS != 300 {
		t.Fatalf("MaxMS = %d, want 300", stats.MaxMS)
	}
}

func TestProfiler_TimeAsyncRecordsEvenOnError(t *testing.T) {
	p := New()
	err := p.TimeAsync("call", func() error { return errors.New("boom") })
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if p.Timers()["call"].Count != 1 {
		t.Fatalf("expected timer recorded despite error")
	}
}

func TestProfiler_ExternalSnapshotsNilUntilReported(t *testing.T) {
	p := New()
	if p.ScreenClientSnapshot() != nil {
		t.Fatal("expected nil screen client snapshot before first report")
	}
	if p.OverlaySnapshot() != nil {
		t.Fatal("expected nil overlay snapshot before first report")
	}

	p.SetScreenClientSnapshot(ExternalSnapshot{TS: 100, Data: map[string]any{"fps": 30}})
	snap := p.ScreenClientSnapshot()
	if snap == nil || snap.TS != 100 {
		t.Fatalf("ScreenClientSnapshot() = %+v, want TS=100", snap)
	}
}

func TestProfiler_SampleComputesHeapAndLag(t *testing.T) {
	p := New()
	p.RecordLoopLag(5)
	p.RecordLoopLag(15)

	var gc debugGCStats
	p.sample(1234, &gc)

	sample, ok := p.LastSample()
	if !ok {
		t.Fatal("expected a sample after calling sample()")
	}
	if sample.TS != 1234 {
		t.Fatalf("TS = %d, want 1234", sample.TS)
	}
	if sample.LoopLagMeanMS != 10 {
		t.Fatalf("LoopLagMeanMS = %v, want 10", sample.LoopLagMeanMS)
	}
	if sample.LoopLagMaxMS != 15 {
		t.Fatalf("LoopLagMaxMS = %v, want 15", sample.LoopLagMaxMS)
	}
	if sample.HeapAllocMB <= 0 {
		t.Fatalf("HeapAllocMB = %v, want > 0", sample.HeapAllocMB)
	}
}
