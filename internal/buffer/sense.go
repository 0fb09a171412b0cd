package buffer

import (
	"sync"
	"time"

	"github.com/sinain-hud/core/internal/model"
)

// DefaultSenseCap is the sense ring buffer's hard capacity.
const DefaultSenseCap = 30

// SenseBuffer is a bounded ring buffer of model.SenseEvent.
type SenseBuffer struct {
	mu      sync.Mutex
	cap     int
	items   []model.SenseEvent
	nextID  uint64
	version uint64
}

// NewSenseBuffer creates a sense buffer with the given capacity. A
// non-positive capacity falls back to DefaultSenseCap.
func NewSenseBuffer(capacity int) *SenseBuffer {
	if capacity <= 0 {
		capacity = DefaultSenseCap
	}
	return &SenseBuffer{cap: capacity, nextID: 1}
}

// Push assigns the next id, stamps ReceivedAt, and appends the event,
// truncating from the head if over capacity. Fails with ErrBadInput if
// Type is unset. A producer ts in the future relative to the local clock
// is accepted as-is (the producer and local clocks are not assumed to be
// synchronized).
func (b *SenseBuffer) Push(evt model.SenseEvent) (model.SenseEvent, error) {
	if evt.Type == "" {
		return model.SenseEvent{}, ErrBadInput
	}
	evt.ReceivedAt = time.Now().UnixMilli()
	if evt.Meta.App == "" {
		evt.Meta.App = "unknown"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	evt.ID = b.nextID
	b.nextID++
	b.items = append(b.items, evt)
	if len(b.items) > b.cap {
		b.items = b.items[len(b.items)-b.cap:]
	}
	b.version++
	return evt, nil
}

// Query returns events with id strictly greater than afterID, in id order.
// When metaOnly is true, each returned event has its binary payloads
// stripped.
func (b *SenseBuffer) Query(afterID uint64, metaOnly bool) []model.SenseEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.SenseEvent, 0, len(b.items))
	for _, it := range b.items {
		if it.ID <= afterID {
			continue
		}
		if metaOnly {
			it = it.MetaOnly()
		}
		out = append(out, it)
	}
	return out
}

// Latest returns the newest event and true, or the zero value and false.
func (b *SenseBuffer) Latest() (model.SenseEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return model.SenseEvent{}, false
	}
	return b.items[len(b.items)-1], true
}

// LatestApp returns the most recently observed app name, or "unknown" if
// the buffer is empty.
func (b *SenseBuffer) LatestApp() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return "unknown"
	}
	return b.items[len(b.items)-1].Meta.App
}

// AppHistory returns the chronologically-ordered sequence of distinct
// adjacent app transitions observed since sinceMS. Non-adjacent repeats
// are not compacted: A, B, A yields three transitions, not two.
func (b *SenseBuffer) AppHistory(sinceMS int64) []model.AppTransition {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.AppTransition, 0, len(b.items))
	var lastApp string
	haveLast := false
	for _, it := range b.items {
		if it.TS < sinceMS {
			continue
		}
		app := it.Meta.App
		if haveLast && app == lastApp {
			continue
		}
		out = append(out, model.AppTransition{App: app, TS: it.TS})
		lastApp = app
		haveLast = true
	}
	return out
}

// Size returns the number of events currently retained.
func (b *SenseBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Version returns the monotonic push counter.
func (b *SenseBuffer) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}
