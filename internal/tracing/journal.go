package tracing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sinain-hud/core/internal/model"
)

// rotateSchedule is the journal's rotation cadence. Expressed as a cron
// expression and walked with gronx rather than a hand-rolled "is it
// midnight yet" compare, so a future move off daily rotation is a
// one-line expression change.
const rotateSchedule = "@daily"

// Journal is an append-only daily JSONL trace log. It rotates to a new
// file when the UTC date changes.
type Journal struct {
	mu         sync.Mutex
	dir        string
	file       *os.File
	fileDate   string
	nextRotate time.Time
}

// NewJournal opens (or creates) dir for daily trace files. dir must exist
// or be creatable.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tracing: create journal dir: %w", err)
	}
	j := &Journal{dir: dir}
	if err := j.rotate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return j, nil
}

// Write appends trace as one JSON line, rotating the file first if the
// scheduled rotation boundary has passed. Write errors are returned to
// the caller, who is expected to log and continue: a journal failure
// must never fail the tick.
func (j *Journal) Write(trace model.Trace) error {
	now := time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.nextRotate.IsZero() && !now.Before(j.nextRotate) {
		if err := j.rotateLocked(now); err != nil {
			return err
		}
	}

	line, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("tracing: marshal trace: %w", err)
	}
	line = append(line, '\n')
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("tracing: write trace: %w", err)
	}
	return nil
}

func (j *Journal) rotate(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rotateLocked(now)
}

func (j *Journal) rotateLocked(now time.Time) error {
	if j.file != nil {
		_ = j.file.Close()
	}
	date := now.Format("2006-01-02")
	path := filepath.Join(j.dir, date+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("tracing: open journal file %s: %w", path, err)
	}
	j.file = f
	j.fileDate = date

	next, err := gronx.NextTickAfter(rotateSchedule, now, false)
	if err != nil {
		next = now.Add(24 * time.Hour)
	}
	j.nextRotate = next
	return nil
}

// Close flushes and closes the current journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
