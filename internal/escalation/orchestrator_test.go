package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/model"
)

type fakeTransport struct {
	connected bool
	outcome   *WaitOutcome
	rpcErr    *RPCErrorObject
	err       error
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) AgentWait(ctx context.Context, message, idemKey, sessionKey string, timeoutMS int) (*WaitOutcome, *RPCErrorObject, error) {
	return f.outcome, f.rpcErr, f.err
}

type fakeHook struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeHook) PostHook(ctx context.Context, message, sessionKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	items []model.FeedItem
}

func (f *fakeBroadcaster) Broadcast(item model.FeedItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestOrchestrator_SuccessfulReplyPushesFeedAndBroadcasts(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	bc := &fakeBroadcaster{}
	tr := &fakeTransport{connected: true, outcome: &WaitOutcome{Payloads: []string{"looks fine"}}}
	o := New(feed, bc, tr, nil, "sess", nil)
	o.SetMode(ModeRich, 0)

	decision := o.OnTick(context.Background(), 1, "Coding", "an error occurred in the build", model.ContextWindow{}, 1000)
	if !decision.Escalate {
		t.Fatal("expected escalation in rich mode")
	}

	waitFor(t, func() bool { return o.Counters().TotalResponses == 1 })
	waitFor(t, func() bool {
		bc.mu.Lock()
		defer bc.mu.Unlock()
		return len(bc.items) == 1
	})
	if bc.items[0].Source != model.SourceAgent || bc.items[0].Priority != model.PriorityHigh {
		t.Fatalf("unexpected feed item: %+v", bc.items[0])
	}
}

func TestOrchestrator_RPCErrorObjectSkipsHTTPFallback(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	bc := &fakeBroadcaster{}
	tr := &fakeTransport{connected: true, rpcErr: &RPCErrorObject{Message: "bad session"}}
	hook := &fakeHook{}
	o := New(feed, bc, tr, hook, "sess", nil)
	o.SetMode(ModeRich, 0)

	o.OnTick(context.Background(), 1, "Coding", "an error occurred", model.ContextWindow{}, 1000)

	waitFor(t, func() bool { return o.Counters().TotalErrors == 1 })
	time.Sleep(20 * time.Millisecond)
	hook.mu.Lock()
	defer hook.mu.Unlock()
	if hook.calls != 0 {
		t.Fatalf("expected no HTTP fallback on structured RPC error, got %d calls", hook.calls)
	}
}

func TestOrchestrator_RPCExceptionFallsThroughToHTTP(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	bc := &fakeBroadcaster{}
	tr := &fakeTransport{connected: true, err: context.DeadlineExceeded}
	hook := &fakeHook{}
	o := New(feed, bc, tr, hook, "sess", nil)
	o.SetMode(ModeRich, 0)

	o.OnTick(context.Background(), 1, "Coding", "an error occurred", model.ContextWindow{}, 1000)

	waitFor(t, func() bool {
		hook.mu.Lock()
		defer hook.mu.Unlock()
		return hook.calls == 1
	})
	if o.Counters().TotalErrors != 1 {
		t.Fatalf("expected one error counted, got %d", o.Counters().TotalErrors)
	}
}

func TestOrchestrator_CooldownBlocksSecondEscalation(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	bc := &fakeBroadcaster{}
	tr := &fakeTransport{connected: true, outcome: &WaitOutcome{Payloads: []string{"ok"}}}
	o := New(feed, bc, tr, nil, "sess", nil)
	o.SetMode(ModeRich, 60_000)

	d1 := o.OnTick(context.Background(), 1, "Coding", "err one", model.ContextWindow{}, 1000)
	d2 := o.OnTick(context.Background(), 2, "Coding", "err two", model.ContextWindow{}, 2000)

	if !d1.Escalate {
		t.Fatal("expected first tick to escalate")
	}
	if d2.Escalate {
		t.Fatal("expected second tick within cooldown to be blocked")
	}
}

func TestOrchestrator_NoTransportOrHookSkipsDeliveryWithoutPanic(t *testing.T) {
	feed := buffer.NewFeedBuffer(10)
	o := New(feed, nil, nil, nil, "sess", nil)
	o.SetMode(ModeRich, 0)

	decision := o.OnTick(context.Background(), 1, "Coding", "an error occurred", model.ContextWindow{}, 1000)
	if !decision.Escalate {
		t.Fatal("expected escalation decision regardless of transport availability")
	}
	time.Sleep(20 * time.Millisecond)
}
