// Package tick drives the analyzer loop: debounce/max-interval/cooldown
// scheduling, one in-flight tick at a time, and the fixed ten-step
// procedure that turns a context-window snapshot into an AgentEntry.
package tick

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sinain-hud/core/internal/buffer"
	tickcontext "github.com/sinain-hud/core/internal/context"
	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/providers"
	"github.com/sinain-hud/core/internal/situation"
	"github.com/sinain-hud/core/internal/tracing"
)

// Escalator is the tick-engine's sole collaborator in the escalation
// pipeline; *escalation.Orchestrator satisfies this.
type Escalator interface {
	OnTick(ctx context.Context, tickID uint64, hud, digest string, cw model.ContextWindow, nowMS int64) escalation.Decision
}

// StatusBroadcaster is notified whenever a tick produces a new AgentEntry,
// independent of whether the HUD text changed.
type StatusBroadcaster interface {
	BroadcastStatus(entry model.AgentEntry)
}

// Clock abstracts wall-clock reads so tests can drive the engine's
// scheduling decisions without waiting for real time to pass.
type Clock interface {
	NowMS() int64
}

type systemClock struct{}

func (systemClock) NowMS() int64 { return time.Now().UnixMilli() }

// Config is the engine's scheduling and prompt-shaping parameters.
type Config struct {
	DebounceMS    int64
	MaxIntervalMS int64
	CooldownMS    int64
	ContextAgeMS  int64
	Richness      model.RichnessPreset
	Model         string
	FallbackModels []string
	MaxTokens     int
	Temperature   float64
	PushToFeed    bool
}

// DefaultConfig matches spec §4.C's stated defaults.
func DefaultConfig() Config {
	return Config{
		DebounceMS:    3000,
		MaxIntervalMS: 30000,
		CooldownMS:    0,
		ContextAgeMS:  tickcontext.DefaultAgeMS,
		Richness:      model.RichnessStandard,
		MaxTokens:     400,
		Temperature:   0.3,
		PushToFeed:    true,
	}
}

// Engine owns the tick scheduling state machine. Exactly one tick runs
// at a time; OnEvent() records an event arrival, after which the running
// scheduling loop may fire a debounced tick.
type Engine struct {
	cfg    Config
	clock  Clock
	logger *slog.Logger

	feed  *buffer.FeedBuffer
	sense *buffer.SenseBuffer

	tracer    *tracing.Tracer
	journal   *tracing.Journal
	providers *providers.Client
	situation *situation.Writer
	escalator Escalator
	status    StatusBroadcaster

	mu           sync.Mutex
	running      bool
	inFlight     bool
	lastTickEnd  int64
	lastEventTS  int64
	pendingEvent bool
	currentApp   string

	nextTickID atomic.Uint64
	lastHUD    atomic.Value // string

	stop chan struct{}
	done chan struct{}
}

// New builds an Engine. tracer, journal, providers, situationWriter, and
// escalator are required collaborators; status may be nil.
func New(cfg Config, feed *buffer.FeedBuffer, sense *buffer.SenseBuffer, tracer *tracing.Tracer, journal *tracing.Journal, client *providers.Client, situationWriter *situation.Writer, escalator Escalator, status StatusBroadcaster, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		clock:     systemClock{},
		logger:    logger,
		feed:      feed,
		sense:     sense,
		tracer:    tracer,
		journal:   journal,
		providers: client,
		situation: situationWriter,
		escalator: escalator,
		status:    status,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.lastHUD.Store("")
	return e
}

// SetClock overrides the wall clock; intended for tests.
func (e *Engine) SetClock(c Clock) { e.clock = c }

// Start launches the scheduling loop. Call Stop to drain and exit.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.lastTickEnd = e.clock.NowMS()
	e.mu.Unlock()

	go e.loop(ctx)
}

// Stop signals the scheduling loop to exit and waits for it to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()
	close(e.stop)
	<-e.done
}

// OnEvent records that a new sense/audio event arrived, starting (or
// restarting) the debounce window. It is safe to call from any
// goroutine.
func (e *Engine) OnEvent(nowMS int64, app string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastEventTS = nowMS
	e.pendingEvent = true
	if app != "" {
		e.currentApp = app
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.maybeFire(ctx)
		}
	}
}

func (e *Engine) maybeFire(ctx context.Context) {
	now := e.clock.NowMS()

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return
	}
	sinceTick := now - e.lastTickEnd
	inCooldown := sinceTick < e.cfg.CooldownMS

	maxIntervalDue := sinceTick >= e.cfg.MaxIntervalMS
	debounceDue := e.pendingEvent && !inCooldown && (now-e.lastEventTS) >= e.cfg.DebounceMS

	if !maxIntervalDue && !debounceDue {
		e.mu.Unlock()
		return
	}
	e.inFlight = true
	e.pendingEvent = false
	currentApp := e.currentApp
	e.mu.Unlock()

	e.runTick(ctx, currentApp)

	e.mu.Lock()
	e.inFlight = false
	e.lastTickEnd = e.clock.NowMS()
	e.mu.Unlock()
}

// runTick executes the fixed ten-step per-tick procedure.
func (e *Engine) runTick(ctx context.Context, currentApp string) {
	tickID := e.nextTickID.Add(1)
	startMS := e.clock.NowMS()

	active := e.tracer.Begin(tickID, startMS)
	var traceErr error

	// Step 2: contextBuild span.
	active.StartSpan("contextBuild", e.clock.NowMS())
	cw := tickcontext.Assemble(e.feed, e.sense, e.cfg.ContextAgeMS, currentApp, e.cfg.Richness, startMS)
	active.EndSpan("contextBuild", e.clock.NowMS(), model.SpanOK, map[string]interface{}{
		"screen.count": len(cw.Screen),
		"audio.count":  len(cw.Audio),
	}, nil)

	// Step 3: prompt build.
	messages := BuildMessages(cw, startMS)

	// Step 4/6: llmCall span with model-chain fallback.
	models := append([]string{e.cfg.Model}, e.cfg.FallbackModels...)
	llmStart := e.clock.NowMS()
	active.StartSpan("llmCall", llmStart)
	resp, usedModel, err := providers.ChatWithChain(ctx, e.providers, models, messages, e.cfg.MaxTokens, e.cfg.Temperature)
	llmEnd := e.clock.NowMS()

	var parsed ParsedOutput
	var tokensIn, tokensOut int
	if err != nil {
		traceErr = err
		active.EndSpan("llmCall", llmEnd, model.SpanError, map[string]interface{}{"model": e.cfg.Model}, err)
		e.logger.Error("tick: model chain exhausted", "tickId", tickID, "error", err)
		parsed = ParsedOutput{HUD: "—", Digest: "", ParsedOK: false}
		usedModel = e.cfg.Model
	} else {
		tokensIn = resp.Usage.PromptTokens
		tokensOut = resp.Usage.CompletionTokens
		active.EndSpan("llmCall", llmEnd, model.SpanOK, map[string]interface{}{
			"model":       usedModel,
			"tokens.in":   tokensIn,
			"tokens.out":  tokensOut,
		}, nil)
		// Step 5: parse.
		parsed = ParseOutput(resp.Content)
	}

	// Step 7: record AgentEntry; push HUD only if changed; broadcast status.
	entry := model.AgentEntry{
		ID:                 tickID,
		TS:                 startMS,
		Model:              usedModel,
		LatencyMS:          llmEnd - llmStart,
		TokensIn:           tokensIn,
		TokensOut:          tokensOut,
		ParsedOK:           parsed.ParsedOK,
		HUD:                parsed.HUD,
		Digest:             parsed.Digest,
		ContextFreshnessMS: startMS - cw.NewestEventTS,
		Context: model.AgentEntryContext{
			CurrentApp:      cw.CurrentApp,
			AppHistoryNames: appHistoryNames(cw),
			AudioCount:      len(cw.Audio),
			ScreenCount:     len(cw.Screen),
		},
	}

	prevHUD, _ := e.lastHUD.Load().(string)
	hudChanged := entry.HUD != prevHUD
	e.lastHUD.Store(entry.HUD)

	if e.cfg.PushToFeed && hudChanged {
		e.feed.Push(model.FeedItem{
			Source:   model.SourceSense,
			Channel:  model.ChannelStream,
			Priority: model.PriorityNormal,
			Text:     "[PERIODIC] " + entry.HUD,
		})
	}
	if e.status != nil {
		e.status.BroadcastStatus(entry)
	}

	// Step 8: atomic situation snapshot.
	if e.situation != nil {
		if werr := e.situation.Write(entry, cw, e.clock.NowMS()); werr != nil {
			e.logger.Warn("tick: situation write failed", "tickId", tickID, "error", werr)
		}
	}

	// Step 9: escalator. Runs regardless of parsed.ParsedOK — a parse
	// failure still leaves entry.Digest holding the model's raw output,
	// which is exactly the unstructured-error-text case the scorer needs
	// to see; model-chain exhaustion instead yields hud="—", which the
	// scorer's own gate already rejects.
	escalated := false
	if e.escalator != nil {
		escalated = e.escalator.OnTick(ctx, tickID, entry.HUD, entry.Digest, cw, e.clock.NowMS()).Escalate
	}

	// Step 10: finish trace, append journal.
	metrics := model.TraceMetrics{
		TotalLatencyMS:      e.clock.NowMS() - startMS,
		LLMLatencyMS:        llmEnd - llmStart,
		LLMInputTokens:      tokensIn,
		LLMOutputTokens:     tokensOut,
		Escalated:           escalated,
		ContextScreenEvents: len(cw.Screen),
		ContextAudioEntries: len(cw.Audio),
		ContextRichness:     cw.Richness.Name,
		DigestLength:        len(entry.Digest),
		HUDChanged:          hudChanged,
	}
	trace := active.Finish(metrics)

	if e.journal != nil {
		if jerr := e.journal.Write(trace); jerr != nil {
			e.logger.Warn("tick: journal write failed", "tickId", tickID, "error", jerr)
		}
	}

	if traceErr != nil {
		e.logger.Error("tick: failed", "tickId", tickID, "error", traceErr)
	}
}

func appHistoryNames(cw model.ContextWindow) []string {
	names := make([]string, len(cw.AppHistory))
	for i, h := range cw.AppHistory {
		names[i] = h.App
	}
	return names
}
