package tick

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/providers"
	"github.com/sinain-hud/core/internal/situation"
	"github.com/sinain-hud/core/internal/tracing"
)

type fakeClock struct {
	ms atomic.Int64
}

func (c *fakeClock) NowMS() int64    { return c.ms.Load() }
func (c *fakeClock) Advance(d int64) { c.ms.Add(d) }

type fakeEscalator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEscalator) OnTick(ctx context.Context, tickID uint64, hud, digest string, cw model.ContextWindow, nowMS int64) escalation.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return escalation.Decision{Escalate: false}
}

type fakeStatus struct {
	mu      sync.Mutex
	entries []model.AgentEntry
}

func (f *fakeStatus) BroadcastStatus(entry model.AgentEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func newTestEngine(t *testing.T, llmURL string) (*Engine, *buffer.FeedBuffer, *fakeStatus, *fakeClock) {
	t.Helper()
	feed := buffer.NewFeedBuffer(50)
	sense := buffer.NewSenseBuffer(30)
	tracer := tracing.NewTracer()
	sit := situation.New("", false)
	client := providers.NewClient("test", "key", llmURL)
	esc := &fakeEscalator{}
	status := &fakeStatus{}

	cfg := DefaultConfig()
	cfg.DebounceMS = 100
	cfg.MaxIntervalMS = 100_000
	cfg.CooldownMS = 0
	cfg.Model = "test-model"

	e := New(cfg, feed, sense, tracer, nil, client, sit, esc, status, nil)
	clk := &fakeClock{}
	clk.ms.Store(1_000_000)
	e.SetClock(clk)
	return e, feed, status, clk
}

func TestEngine_RunTickParsesStrictJSONAndBroadcasts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"hud":"Coding in Go","digest":"Writing tests for the tick engine."}`}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer server.Close()

	e, feed, status, clk := newTestEngine(t, server.URL)

	e.runTick(context.Background(), "vscode")

	status.mu.Lock()
	defer status.mu.Unlock()
	if len(status.entries) != 1 {
		t.Fatalf("expected 1 status broadcast, got %d", len(status.entries))
	}
	entry := status.entries[0]
	if entry.HUD != "Coding in Go" || !entry.ParsedOK {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	items := feed.Query(0, false)
	if len(items) != 1 || items[0].Text != "[PERIODIC] Coding in Go" {
		t.Fatalf("expected periodic HUD push, got %+v", items)
	}
	_ = clk
}

func TestEngine_RunTickModelUnavailableStillProducesEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e, _, status, _ := newTestEngine(t, server.URL)
	e.runTick(context.Background(), "vscode")

	status.mu.Lock()
	defer status.mu.Unlock()
	if len(status.entries) != 1 {
		t.Fatalf("expected an entry even on model failure, got %d", len(status.entries))
	}
	if status.entries[0].ParsedOK {
		t.Fatal("expected ParsedOK=false on model failure")
	}
}

func TestEngine_MaxIntervalFiresWithoutEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"hud":"Idle","digest":"Nothing happened."}`}},
			},
		})
	}))
	defer server.Close()

	e, _, status, clk := newTestEngine(t, server.URL)
	e.cfg.MaxIntervalMS = 200

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	clk.Advance(300)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status.mu.Lock()
		n := len(status.entries)
		status.mu.Unlock()
		if n >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected a max-interval tick to fire")
}
