package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/profiler"
	"github.com/sinain-hud/core/internal/tracing"
)

type fakeModeSetter struct {
	mode       escalation.Mode
	cooldownMS int64
}

func (f *fakeModeSetter) SetMode(mode escalation.Mode, cooldownMS int64) {
	f.mode = mode
	f.cooldownMS = cooldownMS
}

type fakeStatus struct{}

func (fakeStatus) Status() model.StatusSnapshot {
	return model.StatusSnapshot{RPCConnected: true, EscalationMode: "selective"}
}

func newTestIngress() (*Ingress, *buffer.FeedBuffer, *buffer.SenseBuffer, *fakeModeSetter) {
	feed := buffer.NewFeedBuffer(10)
	sense := buffer.NewSenseBuffer(10)
	prof := profiler.New()
	tracer := tracing.NewTracer()
	mode := &fakeModeSetter{}
	in := New(feed, sense, prof, tracer, mode, nil, nil, fakeStatus{}, 0, 0, nil)
	return in, feed, sense, mode
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestIngress_SenseRoundTrip(t *testing.T) {
	in, _, _, _ := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/sense", model.SenseEvent{Type: model.SenseText, TS: 1000, OCR: "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post /sense: got %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		OK bool   `json:"ok"`
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.OK || created.ID == 0 {
		t.Fatalf("expected {ok:true,id:nonzero}, got %+v", created)
	}

	w = doJSON(t, mux, http.MethodGet, "/sense?after=0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get /sense: got %d", w.Code)
	}
	var events []model.SenseEvent
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].OCR != "hello" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestIngress_SenseRejectsMissingType(t *testing.T) {
	in, _, _, _ := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/sense", model.SenseEvent{TS: 1000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var errBody struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errBody.OK || errBody.Error == "" {
		t.Fatalf("expected {ok:false,error:nonempty}, got %+v", errBody)
	}
}

func TestIngress_FeedRoundTrip(t *testing.T) {
	in, _, _, _ := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/feed", model.FeedItem{Source: model.SourceSystem, Text: "booted"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post /feed: got %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, mux, http.MethodGet, "/feed?after=0", nil)
	var items []model.FeedItem
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Text != "booted" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestIngress_AgentConfigAppliesMode(t *testing.T) {
	in, _, _, mode := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/agent/config", map[string]any{"mode": "focus", "cooldownMs": 5000})
	if w.Code != http.StatusNoContent {
		t.Fatalf("post /agent/config: got %d, body %s", w.Code, w.Body.String())
	}
	if mode.mode != escalation.ModeFocus || mode.cooldownMS != 5000 {
		t.Fatalf("mode not applied: %+v", mode)
	}
}

func TestIngress_AgentConfigRejectsUnknownMode(t *testing.T) {
	in, _, _, _ := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/agent/config", map[string]any{"mode": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIngress_HealthReportsStatusAndGauges(t *testing.T) {
	in, _, _, _ := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodGet, "/health", nil)
	var snap model.StatusSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.RPCConnected || snap.EscalationMode != "selective" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestIngress_RateLimitRejectsBurst(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	sense := buffer.NewSenseBuffer(10)
	prof := profiler.New()
	tracer := tracing.NewTracer()
	in := New(feed, sense, prof, tracer, &fakeModeSetter{}, nil, nil, fakeStatus{}, 1, 1, nil)
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	item := model.FeedItem{Source: model.SourceSystem, Text: "x"}
	first := doJSON(t, mux, http.MethodPost, "/feed", item)
	if first.Code != http.StatusCreated {
		t.Fatalf("first post expected 201, got %d", first.Code)
	}
	second := doJSON(t, mux, http.MethodPost, "/feed", item)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second post expected 429, got %d", second.Code)
	}
}

type fakeNotifier struct {
	calls int
	app   string
}

func (f *fakeNotifier) OnEvent(nowMS int64, app string) {
	f.calls++
	f.app = app
}

func TestIngress_SensePushNotifiesEngine(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	sense := buffer.NewSenseBuffer(10)
	prof := profiler.New()
	tracer := tracing.NewTracer()
	notify := &fakeNotifier{}
	in := New(feed, sense, prof, tracer, &fakeModeSetter{}, notify, nil, fakeStatus{}, 0, 0, nil)
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/sense", model.SenseEvent{Type: model.SenseText, TS: 1000, Meta: model.SenseMeta{App: "editor"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("post /sense: got %d", w.Code)
	}
	if notify.calls != 1 || notify.app != "editor" {
		t.Fatalf("expected one notify call for app editor, got %+v", notify)
	}
}

func TestIngress_BodyTooLargeRejected(t *testing.T) {
	in, _, _, _ := newTestIngress()
	mux := http.NewServeMux()
	in.RegisterRoutes(mux)

	huge := strings.Repeat("a", maxBodyBytes+1)
	r := httptest.NewRequest(http.MethodPost, "/feed", strings.NewReader(`{"source":"system","text":"`+huge+`"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", w.Code)
	}
}
