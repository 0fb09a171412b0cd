// Package buffer implements the bounded, monotonically-versioned ring
// buffers that mediate between ingress paths (audio transcription, sense
// ingestion) and consumers (tick engine, fan-out server).
package buffer

import (
	"strings"
	"sync"
	"time"

	"github.com/sinain-hud/core/internal/model"
)

const (
	// DefaultFeedCap is the feed ring buffer's hard capacity.
	DefaultFeedCap = 100

	// periodicPrefix marks feed items synthesized by the tick engine's
	// always-on HUD push; overlay-directed queries skip these.
	periodicPrefix = "[PERIODIC]"
)

// FeedBuffer is a bounded, single-writer-preferred ring buffer of
// model.FeedItem. Readers always receive value copies; ids are strictly
// increasing and never reused.
type FeedBuffer struct {
	mu      sync.Mutex
	cap     int
	items   []model.FeedItem
	nextID  uint64
	version uint64
}

// NewFeedBuffer creates a feed buffer with the given capacity. A
// non-positive capacity falls back to DefaultFeedCap.
func NewFeedBuffer(capacity int) *FeedBuffer {
	if capacity <= 0 {
		capacity = DefaultFeedCap
	}
	return &FeedBuffer{cap: capacity, nextID: 1}
}

// Push assigns the next id, stamps the timestamp if unset, and appends the
// item, truncating from the head if the buffer is over capacity. Fails
// with ErrBadInput if Source is unset.
func (b *FeedBuffer) Push(item model.FeedItem) (model.FeedItem, error) {
	if item.Source == "" {
		return model.FeedItem{}, ErrBadInput
	}
	if item.Channel == "" {
		item.Channel = model.ChannelStream
	}
	if item.Priority == "" {
		item.Priority = model.PriorityNormal
	}
	if item.TS == 0 {
		item.TS = time.Now().UnixMilli()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	item.ID = b.nextID
	b.nextID++
	b.items = append(b.items, item)
	if len(b.items) > b.cap {
		b.items = b.items[len(b.items)-b.cap:]
	}
	b.version++
	return item, nil
}

// Query returns items with id strictly greater than afterID, in id order.
// Items whose text begins with the periodic-push prefix are skipped when
// overlayOnly is true (the overlay never needs to see its own heartbeat
// HUD pushes echoed back as feed entries).
func (b *FeedBuffer) Query(afterID uint64, overlayOnly bool) []model.FeedItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.FeedItem, 0, len(b.items))
	for _, it := range b.items {
		if it.ID <= afterID {
			continue
		}
		if overlayOnly && strings.HasPrefix(it.Text, periodicPrefix) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// QueryByTime returns items with ts >= sinceMS, in id order.
func (b *FeedBuffer) QueryByTime(sinceMS int64) []model.FeedItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.FeedItem, 0, len(b.items))
	for _, it := range b.items {
		if it.TS >= sinceMS {
			out = append(out, it)
		}
	}
	return out
}

// QueryBySource returns items matching the given source with ts >= sinceMS.
func (b *FeedBuffer) QueryBySource(tag model.Source, sinceMS int64) []model.FeedItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.FeedItem, 0, len(b.items))
	for _, it := range b.items {
		if it.Source == tag && it.TS >= sinceMS {
			out = append(out, it)
		}
	}
	return out
}

// Latest returns the newest item and true, or the zero value and false if
// the buffer is empty.
func (b *FeedBuffer) Latest() (model.FeedItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return model.FeedItem{}, false
	}
	return b.items[len(b.items)-1], true
}

// Size returns the number of items currently retained.
func (b *FeedBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Version returns the monotonic push counter, bumped on every Push.
func (b *FeedBuffer) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}
