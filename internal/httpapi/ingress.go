// Package httpapi exposes the hub's ingress HTTP surface: sense/feed
// injection and query, external profiling reports, runtime escalation
// mode changes, a combined health snapshot, and the rolling trace
// window.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/profiler"
	"github.com/sinain-hud/core/internal/tracing"
)

// maxBodyBytes bounds every request body this surface accepts.
const maxBodyBytes = 2 << 20 // 2 MiB

// ModeSetter lets /agent/config hot-swap the escalation mode at runtime.
// *escalation.Orchestrator satisfies this directly.
type ModeSetter interface {
	SetMode(mode escalation.Mode, cooldownMS int64)
}

// EventNotifier lets a successful sense push restart the tick engine's
// debounce window. *tick.Engine satisfies this directly.
type EventNotifier interface {
	OnEvent(nowMS int64, app string)
}

// FeedBroadcaster fans a system-injected feed item out to connected
// overlay clients. *fanout.Server satisfies this directly.
type FeedBroadcaster interface {
	Broadcast(item model.FeedItem)
}

// Ingress wires the HTTP handlers against the buffers, profiler, tracer
// and escalation orchestrator.
type Ingress struct {
	feed      *buffer.FeedBuffer
	sense     *buffer.SenseBuffer
	profiler  *profiler.Profiler
	tracer    *tracing.Tracer
	mode      ModeSetter
	notify    EventNotifier
	broadcast FeedBroadcaster
	status    StatusProvider
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// StatusProvider supplies the snapshot GET /health serves alongside
// profiling gauges.
type StatusProvider interface {
	Status() model.StatusSnapshot
}

// New builds an Ingress. notify and broadcast may be nil (e.g. in
// tests); rps/burst configure the shared write-path rate limiter (0
// rps disables limiting).
func New(feed *buffer.FeedBuffer, sense *buffer.SenseBuffer, prof *profiler.Profiler, tracer *tracing.Tracer, mode ModeSetter, notify EventNotifier, broadcast FeedBroadcaster, status StatusProvider, rps float64, burst int, logger *slog.Logger) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Ingress{feed: feed, sense: sense, profiler: prof, tracer: tracer, mode: mode, notify: notify, broadcast: broadcast, status: status, limiter: limiter, logger: logger}
}

// RegisterRoutes mounts every handler on mux.
func (in *Ingress) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sense", in.rateLimited(in.handleSense))
	mux.HandleFunc("/feed", in.rateLimited(in.handleFeed))
	mux.HandleFunc("/profiling/sense", in.rateLimited(in.handleProfilingSense))
	mux.HandleFunc("/agent/config", in.rateLimited(in.handleAgentConfig))
	mux.HandleFunc("/health", in.handleHealth)
	mux.HandleFunc("/traces", in.handleTraces)
}

func (in *Ingress) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && in.limiter != nil && !in.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (in *Ingress) handleSense(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var evt model.SenseEvent
		if !decodeBody(w, r, &evt) {
			return
		}
		if evt.Type == "" || evt.TS == 0 {
			writeError(w, http.StatusBadRequest, "type and ts are required")
			return
		}
		stored, err := in.sense.Push(evt)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if in.notify != nil {
			in.notify.OnEvent(stored.ReceivedAt, stored.Meta.App)
		}
		writeOK(w, http.StatusCreated, stored.ID)

	case http.MethodGet:
		after := queryUint(r, "after", 0)
		metaOnly := queryBool(r, "meta_only", false)
		writeJSON(w, http.StatusOK, in.sense.Query(after, metaOnly))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (in *Ingress) handleFeed(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var item model.FeedItem
		if !decodeBody(w, r, &item) {
			return
		}
		stored, err := in.feed.Push(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if in.broadcast != nil {
			in.broadcast.Broadcast(stored)
		}
		writeOK(w, http.StatusCreated, stored.ID)

	case http.MethodGet:
		after := queryUint(r, "after", 0)
		writeJSON(w, http.StatusOK, in.feed.Query(after, true))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (in *Ingress) handleProfilingSense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Source string         `json:"source"`
		Data   map[string]any `json:"data"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	snap := profiler.ExternalSnapshot{TS: time.Now().UnixMilli(), Data: body.Data}
	if body.Source == "overlay" {
		in.profiler.SetOverlaySnapshot(snap)
	} else {
		in.profiler.SetScreenClientSnapshot(snap)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (in *Ingress) handleAgentConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Mode       string `json:"mode"`
		CooldownMS int64  `json:"cooldownMs"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	mode := escalation.Mode(body.Mode)
	switch mode {
	case escalation.ModeOff, escalation.ModeSelective, escalation.ModeFocus, escalation.ModeRich:
	default:
		http.Error(w, "unknown escalation mode", http.StatusBadRequest)
		return
	}
	in.mode.SetMode(mode, body.CooldownMS)
	w.WriteHeader(http.StatusNoContent)
}

func (in *Ingress) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := model.StatusSnapshot{}
	if in.status != nil {
		status = in.status.Status()
	}
	if in.profiler != nil {
		status.Gauges = in.profiler.Gauges()
	}
	writeJSON(w, http.StatusOK, status)
}

func (in *Ingress) handleTraces(w http.ResponseWriter, r *http.Request) {
	after := queryUint(r, "after", 0)
	limit := int(queryUint(r, "limit", 100))
	writeJSON(w, http.StatusOK, in.tracer.GetTraces(after, limit))
}

// decodeBody reads and JSON-decodes r.Body, capped at maxBodyBytes. An
// oversize body is reported as 413 (per §7's BadInput/oversize surface);
// any other decode failure (malformed JSON) is 400. Required fields are
// checked by the handlers, not here.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeOK writes the §6.3 success envelope {ok:true, id}.
func writeOK(w http.ResponseWriter, status int, id uint64) {
	writeJSON(w, status, struct {
		OK bool   `json:"ok"`
		ID uint64 `json:"id"`
	}{OK: true, ID: id})
}

// writeError writes the §6.3 failure envelope {ok:false, error} at the
// given status, in place of the stdlib's plain-text http.Error.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}{OK: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryUint(r *http.Request, key string, def uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func queryBool(r *http.Request, key string, def bool) bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
