package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/model"
)

const (
	robotGlyph      = "🤖 "
	maxReplyChars   = 2000
	defaultWaitMS   = 60000
)

// WaitOutcome is a successful agent.wait response's payload set.
type WaitOutcome struct {
	Payloads []string
}

// RPCErrorObject is a structured error the gateway returned (as opposed
// to a transport-level exception).
type RPCErrorObject struct {
	Message string
}

// Transport is the subset of the dual-transport RPC client the
// orchestrator needs. A nil Transport (or one reporting IsConnected()
// false) makes delivery fall straight to the HTTP hook.
type Transport interface {
	IsConnected() bool
	AgentWait(ctx context.Context, message, idemKey, sessionKey string, timeoutMS int) (*WaitOutcome, *RPCErrorObject, error)
}

// HookPoster is the HTTP fallback: a fire-and-forget POST to the
// assistant's webhook.
type HookPoster interface {
	PostHook(ctx context.Context, message, sessionKey string) error
}

// Broadcaster pushes a feed item to connected overlay clients.
type Broadcaster interface {
	Broadcast(item model.FeedItem)
}

// Counters is a snapshot of the orchestrator's running totals.
type Counters struct {
	TotalEscalations int64
	TotalResponses   int64
	TotalErrors      int64
	TotalNoReply     int64
}

// Orchestrator owns escalation state across ticks: cooldown bookkeeping,
// dedup against the last escalated digest, delivery counters, and the
// dual-transport hand-off.
type Orchestrator struct {
	mu sync.Mutex

	mode       Mode
	cooldownMS int64

	lastEscalationTS    int64
	lastEscalatedDigest string
	counters            Counters

	feed        *buffer.FeedBuffer
	broadcaster Broadcaster
	transport   Transport
	hook        HookPoster
	sessionKey  string
	logger      *slog.Logger
}

// New returns an Orchestrator. transport and hook may be nil; escalation
// is simply skipped if neither is available at delivery time.
func New(feed *buffer.FeedBuffer, broadcaster Broadcaster, transport Transport, hook HookPoster, sessionKey string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		mode:        ModeOff,
		feed:        feed,
		broadcaster: broadcaster,
		transport:   transport,
		hook:        hook,
		sessionKey:  sessionKey,
		logger:      logger,
	}
}

// SetMode changes the escalation mode and cooldown at runtime.
func (o *Orchestrator) SetMode(mode Mode, cooldownMS int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
	o.cooldownMS = cooldownMS
}

// Counters returns a snapshot of the running totals.
func (o *Orchestrator) Counters() Counters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters
}

// Mode returns the orchestrator's current escalation mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// OnTick evaluates the scorer's decision gate for one tick's outcome and,
// if it escalates, asynchronously delivers the message. It never blocks
// the caller on network I/O.
func (o *Orchestrator) OnTick(ctx context.Context, tickID uint64, hud, digest string, cw model.ContextWindow, nowMS int64) Decision {
	score := ComputeScore(ScoreInput{
		Digest:        digest,
		AudioTexts:    audioTexts(cw),
		AppHistoryLen: len(cw.AppHistory),
	})

	o.mu.Lock()
	decision := Decide(DecisionInput{
		Mode:                o.mode,
		NowMS:               nowMS,
		LastEscalationTS:    o.lastEscalationTS,
		CooldownMS:          o.cooldownMS,
		HUD:                 hud,
		Digest:              digest,
		LastEscalatedDigest: o.lastEscalatedDigest,
		Score:               score,
	})
	if !decision.Escalate {
		o.mu.Unlock()
		return decision
	}
	// Cooldown starts at decision time, not delivery time.
	o.lastEscalationTS = nowMS
	o.lastEscalatedDigest = digest
	o.counters.TotalEscalations++
	mode := o.mode
	o.mu.Unlock()

	idemKey := fmt.Sprintf("hud-%d-%d", tickID, nowMS)
	message := BuildMessage(mode, tickID, digest, cw, nowMS)

	go o.deliver(context.WithoutCancel(ctx), mode, message, digest, idemKey)

	return decision
}

// SendDirect routes a user-authored message (from an overlay client's
// chat box) straight to delivery, skipping the scorer and cooldown
// entirely — it uses the identical transport rules as an escalation but
// is never gated by mode or dedup.
func (o *Orchestrator) SendDirect(ctx context.Context, message string) {
	o.mu.Lock()
	mode := o.mode
	o.mu.Unlock()

	idemKey := fmt.Sprintf("direct-%s", uuid.NewString())
	go o.deliver(context.WithoutCancel(ctx), mode, message, message, idemKey)
}

func (o *Orchestrator) deliver(ctx context.Context, mode Mode, message, digest, idemKey string) {
	if o.transport != nil && o.transport.IsConnected() {
		outcome, rpcErr, err := o.transport.AgentWait(ctx, message, idemKey, o.sessionKey, defaultWaitMS)
		switch {
		case err != nil:
			o.pushErr(fmt.Sprintf("rpc exception: %v", err))
			o.bumpErrors()
			// Exception: fall through to the HTTP hook below.
		case rpcErr != nil:
			o.pushErr(fmt.Sprintf("rpc error: %s", rpcErr.Message))
			o.bumpErrors()
			return
		default:
			joined := strings.TrimSpace(strings.Join(outcome.Payloads, "\n"))
			if joined != "" {
				o.pushAgentReply(joined)
				o.bumpResponses()
				return
			}
			o.bumpNoReply()
			if mode == ModeFocus || mode == ModeRich {
				o.pushAgentReply(digest)
			} else {
				o.logger.Debug("escalation: no reply", "mode", mode)
			}
			return
		}
	}

	if o.hook != nil {
		if err := o.hook.PostHook(ctx, message, o.sessionKey); err != nil {
			o.bumpErrors()
			o.logger.Warn("escalation: hook post failed", "error", err)
		}
	}
}

func (o *Orchestrator) pushAgentReply(text string) {
	if len(text) > maxReplyChars {
		text = text[:maxReplyChars]
	}
	item, err := o.feed.Push(model.FeedItem{
		Source:   model.SourceAgent,
		Channel:  model.ChannelAgent,
		Priority: model.PriorityHigh,
		Text:     robotGlyph + text,
	})
	if err != nil {
		return
	}
	if o.broadcaster != nil {
		o.broadcaster.Broadcast(item)
	}
}

func (o *Orchestrator) pushErr(text string) {
	item, err := o.feed.Push(model.FeedItem{
		Source:   model.SourceSystem,
		Channel:  model.ChannelStream,
		Priority: model.PriorityNormal,
		Text:     "[err] " + text,
	})
	if err != nil {
		return
	}
	if o.broadcaster != nil {
		o.broadcaster.Broadcast(item)
	}
}

func (o *Orchestrator) bumpErrors() {
	o.mu.Lock()
	o.counters.TotalErrors++
	o.mu.Unlock()
}

func (o *Orchestrator) bumpResponses() {
	o.mu.Lock()
	o.counters.TotalResponses++
	o.mu.Unlock()
}

func (o *Orchestrator) bumpNoReply() {
	o.mu.Lock()
	o.counters.TotalNoReply++
	o.mu.Unlock()
}

func audioTexts(cw model.ContextWindow) []string {
	out := make([]string, len(cw.Audio))
	for i, a := range cw.Audio {
		out[i] = a.Text
	}
	return out
}
