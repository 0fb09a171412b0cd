package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sinain-hud/core/internal/escalation"
)

func TestWatch_ReloadInvokesOnReloadOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	if err := os.WriteFile(path, []byte(`{wsPort: 9000}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	current, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloadCount atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, current, nil, func(*Config) { reloadCount.Add(1) }, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{wsPort: 9100}`), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reloadCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if reloadCount.Load() == 0 {
		t.Fatal("expected onReload to fire after file change")
	}
	if current.WSPort != 9100 {
		t.Fatalf("expected current config to reflect reload, got port %d", current.WSPort)
	}

	cancel()
	<-done
}

func TestWatch_OnEdgeFiresOnlyOnModeBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	os.WriteFile(path, []byte(`{escalation: {mode: "off"}}`), 0644)

	current, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var edgeCalls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, current, func(old, updated escalation.Mode) { edgeCalls.Add(1) }, nil, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte(`{escalation: {mode: "selective"}}`), 0644)

	deadline := time.Now().Add(2 * time.Second)
	for current.Escalation.Mode != escalation.ModeSelective && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if edgeCalls.Load() != 1 {
		t.Fatalf("expected exactly one edge call for off->selective, got %d", edgeCalls.Load())
	}

	cancel()
	<-done
}
