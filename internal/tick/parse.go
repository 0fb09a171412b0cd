package tick

import (
	"encoding/json"
	"strings"
)

// ParsedOutput is the tick's structured LLM output.
type ParsedOutput struct {
	HUD      string
	Digest   string
	ParsedOK bool
}

// fenceMarkers are the opening markers of a ```json ... ``` or ``` ... ```
// wrapper.
var fenceMarkers = []string{"```json", "```"}

// ParseOutput applies the three-step fallback chain: strict JSON parse,
// then JSON parse after stripping a fenced-code wrapper, then brace
// extraction. If every step fails, it falls back to a truncated raw
// passthrough with ParsedOK=false.
func ParseOutput(raw string) ParsedOutput {
	if out, ok := tryStrictJSON(raw); ok {
		return out
	}
	if stripped := stripFence(raw); stripped != raw {
		if out, ok := tryStrictJSON(stripped); ok {
			return out
		}
	}
	if braces := extractBraces(raw); braces != "" {
		if out, ok := tryStrictJSON(braces); ok {
			return out
		}
	}

	hud := raw
	if len(hud) > 80 {
		hud = hud[:80]
	}
	return ParsedOutput{HUD: hud, Digest: raw, ParsedOK: false}
}

func tryStrictJSON(s string) (ParsedOutput, bool) {
	var payload struct {
		HUD    string `json:"hud"`
		Digest string `json:"digest"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &payload); err != nil {
		return ParsedOutput{}, false
	}
	return ParsedOutput{HUD: payload.HUD, Digest: payload.Digest, ParsedOK: true}, true
}

func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	for _, marker := range fenceMarkers {
		if strings.HasPrefix(trimmed, marker) {
			rest := trimmed[len(marker):]
			if end := strings.LastIndex(rest, "```"); end >= 0 {
				return strings.TrimSpace(rest[:end])
			}
			return strings.TrimSpace(rest)
		}
	}
	return s
}

func extractBraces(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
