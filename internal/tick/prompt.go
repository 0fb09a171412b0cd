package tick

import (
	"fmt"
	"strings"

	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/providers"
)

const systemPrompt = `You are a real-time activity-awareness assistant watching one user's
screen and microphone. Given the activity context below, respond with strict
JSON only, no markdown fences, no commentary: {"hud": string of at most 15
words, "digest": 3 to 5 sentences}. "hud" is a glanceable one-line status;
"digest" is a short narrative of what just happened.`

// BuildPrompt renders the fixed-structure user message for one tick's
// context window.
func BuildPrompt(cw model.ContextWindow, nowMS int64) string {
	var b strings.Builder

	b.WriteString("Activity snapshot.\n")
	fmt.Fprintf(&b, "Active app: %s\n", orDash(cw.CurrentApp))

	if len(cw.AppHistory) > 0 {
		names := make([]string, len(cw.AppHistory))
		for i, h := range cw.AppHistory {
			names[i] = h.App
		}
		fmt.Fprintf(&b, "App chain: %s\n", strings.Join(names, " -> "))
	}

	b.WriteString("\nScreen (newest first):\n")
	if len(cw.Screen) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range cw.Screen {
		line := collapseNewlines(e.OCR)
		line = truncateChars(line, cw.Richness.MaxOCRChars)
		fmt.Fprintf(&b, "[%s ago] %s\n", ageLabel(nowMS, e.TS), line)
	}

	b.WriteString("\nAudio (newest first):\n")
	if len(cw.Audio) == 0 {
		b.WriteString("(none)\n")
	}
	for _, a := range cw.Audio {
		line := collapseNewlines(a.Text)
		line = truncateChars(line, cw.Richness.MaxTranscriptChars)
		fmt.Fprintf(&b, "[%s ago] %s\n", ageLabel(nowMS, a.TS), line)
	}

	return b.String()
}

// BuildMessages wraps BuildPrompt with the fixed system instruction.
func BuildMessages(cw model.ContextWindow, nowMS int64) []providers.Message {
	return []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(cw, nowMS)},
	}
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func truncateChars(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func ageLabel(nowMS, ts int64) string {
	ageMS := nowMS - ts
	if ageMS < 0 {
		ageMS = 0
	}
	switch {
	case ageMS < 1000:
		return "<1s"
	case ageMS < 60_000:
		return fmt.Sprintf("%ds", ageMS/1000)
	default:
		return fmt.Sprintf("%dm", ageMS/60_000)
	}
}
