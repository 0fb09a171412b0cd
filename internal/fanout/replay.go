package fanout

import (
	"sync"
	"time"

	"github.com/sinain-hud/core/internal/model"
)

// feedReplayCap is the feed replay buffer's fixed capacity.
const feedReplayCap = 20

// spawnTaskTTL is how long a terminal spawn task is kept around for
// clients that connect shortly after it finishes.
const spawnTaskTTL = 10 * time.Minute

// FeedReplay is a small FIFO of the most recent feed broadcasts, replayed
// in id order to clients as they connect.
type FeedReplay struct {
	mu    sync.Mutex
	items []model.FeedItem
}

// NewFeedReplay returns an empty replay buffer.
func NewFeedReplay() *FeedReplay { return &FeedReplay{} }

// Append records item, trimming the oldest entry if over capacity.
func (r *FeedReplay) Append(item model.FeedItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > feedReplayCap {
		r.items = r.items[len(r.items)-feedReplayCap:]
	}
}

// Snapshot returns a copy of the retained items, id order.
func (r *FeedReplay) Snapshot() []model.FeedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.FeedItem, len(r.items))
	copy(out, r.items)
	return out
}

// SpawnTasks is a keyed, insertion-ordered buffer of external task
// lifecycle state, with terminal entries pruned after spawnTaskTTL.
type SpawnTasks struct {
	mu    sync.Mutex
	tasks map[string]model.SpawnTask
	order []string
}

// NewSpawnTasks returns an empty spawn-task buffer.
func NewSpawnTasks() *SpawnTasks {
	return &SpawnTasks{tasks: make(map[string]model.SpawnTask)}
}

// Upsert inserts or updates task, keyed by TaskID. A new key is appended
// to the insertion order; an existing key keeps its original position.
func (s *SpawnTasks) Upsert(task model.SpawnTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.TaskID]; !exists {
		s.order = append(s.order, task.TaskID)
	}
	s.tasks[task.TaskID] = task
}

// PruneAndSnapshot drops terminal entries completed more than
// spawnTaskTTL before nowMS, then returns the remaining tasks in
// insertion order.
func (s *SpawnTasks) PruneAndSnapshot(nowMS int64) []model.SpawnTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]string, 0, len(s.order))
	out := make([]model.SpawnTask, 0, len(s.order))
	for _, id := range s.order {
		task, ok := s.tasks[id]
		if !ok {
			continue
		}
		if task.IsTerminal() && task.CompletedAt > 0 && nowMS-task.CompletedAt > spawnTaskTTL.Milliseconds() {
			delete(s.tasks, id)
			continue
		}
		kept = append(kept, id)
		out = append(out, task)
	}
	s.order = kept
	return out
}
