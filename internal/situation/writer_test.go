package situation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sinain-hud/core/internal/model"
)

func TestWriter_AtomicWriteAndFirstLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "situation.md")
	w := New(path, true)

	entry := model.AgentEntry{ID: 5, HUD: "Coding", Digest: "Writing Go code.", ParsedOK: true}
	cw := model.ContextWindow{CurrentApp: "vscode"}

	if err := w.Write(entry, cw, 10_000); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Situation\n") {
		t.Fatalf("first line wrong: %q", string(data)[:20])
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal(".tmp sibling should not exist after a successful write")
	}
}

func TestWriter_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "situation.md")
	w := New(path, false)

	if err := w.Write(model.AgentEntry{}, model.ContextWindow{}, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected no file written when disabled")
	}
}
