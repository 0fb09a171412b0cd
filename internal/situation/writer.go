// Package situation renders the tick engine's latest outcome to a plain
// text snapshot file for external collaborators (editor extensions,
// shell prompts) that want the current state without speaking the wire
// protocol.
package situation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sinain-hud/core/internal/model"
)

const maxLineChars = 500

// Writer atomically renders AgentEntry + ContextWindow snapshots to Path.
type Writer struct {
	Path    string
	Enabled bool
}

// New returns a Writer for path. Write is a no-op when enabled is false.
func New(path string, enabled bool) *Writer {
	return &Writer{Path: path, Enabled: enabled}
}

// Write renders entry and cw to the snapshot file via a temp-file-then-
// rename sequence, so readers never observe a partially written file.
func (w *Writer) Write(entry model.AgentEntry, cw model.ContextWindow, nowMS int64) error {
	if !w.Enabled || w.Path == "" {
		return nil
	}

	body := render(entry, cw, nowMS)

	dir := filepath.Dir(w.Path)
	tmp := w.Path + ".tmp"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("situation: mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("situation: write tmp: %w", err)
	}
	if err := os.Rename(tmp, w.Path); err != nil {
		return fmt.Errorf("situation: rename: %w", err)
	}
	return nil
}

func render(entry model.AgentEntry, cw model.ContextWindow, nowMS int64) string {
	var b strings.Builder

	b.WriteString("# Situation\n")
	fmt.Fprintf(&b, "_tick %d, %s_\n\n", entry.ID, entry.HUD)

	b.WriteString("## Digest\n")
	b.WriteString(entry.Digest)
	b.WriteString("\n\n")

	b.WriteString("## Active Application\n")
	b.WriteString(orDash(cw.CurrentApp))
	b.WriteString("\n\n")

	if len(cw.AppHistory) > 0 {
		b.WriteString("## App History\n")
		names := make([]string, len(cw.AppHistory))
		for i, h := range cw.AppHistory {
			names[i] = h.App
		}
		b.WriteString(strings.Join(names, " -> "))
		b.WriteString("\n\n")
	}

	if len(cw.Screen) > 0 {
		b.WriteString("## Screen (OCR)\n")
		for _, e := range cw.Screen {
			ocr := truncate(strings.ReplaceAll(e.OCR, "\n", " "), maxLineChars)
			fmt.Fprintf(&b, "- [%ds ago] [%s] %s\n", ageSeconds(nowMS, e.TS), orDash(e.Meta.App), ocr)
		}
		b.WriteString("\n")
	}

	if len(cw.Audio) > 0 {
		b.WriteString("## Audio Transcripts\n")
		for _, a := range cw.Audio {
			text := truncate(strings.ReplaceAll(a.Text, "\n", " "), maxLineChars)
			fmt.Fprintf(&b, "- [%ds ago] %s\n", ageSeconds(nowMS, a.TS), text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Metadata\n")
	fmt.Fprintf(&b, "Screen events: %d\n", len(cw.Screen))
	fmt.Fprintf(&b, "Audio entries: %d\n", len(cw.Audio))
	fmt.Fprintf(&b, "Parsed OK: %t\n", entry.ParsedOK)

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func ageSeconds(nowMS, ts int64) int64 {
	age := (nowMS - ts) / 1000
	if age < 0 {
		return 0
	}
	return age
}
