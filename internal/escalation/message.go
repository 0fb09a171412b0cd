package escalation

import (
	"fmt"
	"strings"

	"github.com/sinain-hud/core/internal/model"
)

// matchesErrorPattern checks the same fixed word-set the scorer uses
// (errorWords), reused here to
// pick out "high priority" screen events for the message's error section.
func matchesErrorPattern(ocrLower string) bool {
	return containsAny(ocrLower, errorWords)
}

// BuildMessage renders the mode-sized escalation text for tickID.
func BuildMessage(mode Mode, tickID uint64, digest string, cw model.ContextWindow, nowMS int64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[sinain-hud live context — tick #%d]\n\n", tickID)

	b.WriteString("## Digest\n")
	b.WriteString(digest)
	b.WriteString("\n\n")

	b.WriteString("## Active Context\n")
	app := cw.CurrentApp
	if app == "" {
		app = "—"
	}
	b.WriteString(app)
	if len(cw.AppHistory) > 0 {
		names := make([]string, len(cw.AppHistory))
		for i, h := range cw.AppHistory {
			names[i] = h.App
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(names, " → "))
		b.WriteString(")")
	}
	b.WriteString("\n\n")

	var errorEvents []model.SenseEvent
	for _, e := range cw.Screen {
		if matchesErrorPattern(strings.ToLower(e.OCR)) {
			errorEvents = append(errorEvents, e)
		}
	}
	if len(errorEvents) > 0 {
		b.WriteString("## Errors (high priority)\n")
		for _, e := range errorEvents {
			ocr := truncateChars(e.OCR, cw.Richness.MaxOCRChars)
			fmt.Fprintf(&b, "```\n%s\n```\n", ocr)
		}
		b.WriteString("\n")
	}

	if len(cw.Screen) > 0 {
		b.WriteString("## Screen (recent OCR)\n")
		for _, e := range cw.Screen {
			ocr := truncateChars(e.OCR, cw.Richness.MaxOCRChars)
			fmt.Fprintf(&b, "- [%ds ago] [%s] %s\n", ageSeconds(nowMS, e.TS), orDash(e.Meta.App), ocr)
		}
		b.WriteString("\n")
	}

	if len(cw.Audio) > 0 {
		b.WriteString("## Audio (recent transcripts)\n")
		for _, a := range cw.Audio {
			text := truncateChars(a.Text, cw.Richness.MaxTranscriptChars)
			fmt.Fprintf(&b, "- [%ds ago] %q\n", ageSeconds(nowMS, a.TS), text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Instructions\n")
	switch mode {
	case ModeFocus, ModeRich:
		b.WriteString("Do not reply with NO_REPLY. Respond with something useful even if uncertain.\n")
	default:
		b.WriteString("Reply in 2 to 5 sentences. Be actionable when relevant.\n")
	}
	b.WriteString("\nRespond naturally — this will appear on the user's HUD overlay.\n")

	return b.String()
}

func truncateChars(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if max <= 0 || len(s) <= max {
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

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
