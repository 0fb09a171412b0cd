package context

import "strings"

// aliases maps raw app names (as OS window managers report them) to a
// canonical display name. Matching is case-insensitive.
var aliases = map[string]string{
	"code":        "vscode",
	"visual studio code": "vscode",
	"google chrome": "chrome",
	"googlechrome":  "chrome",
	"iterm2":      "iterm",
	"windowsterminal": "terminal",
	"wt":          "terminal",
	"slack helper": "slack",
}

// knownExts are stripped from the end of an app name before alias lookup.
var knownExts = []string{".exe", ".app", ".bin"}

// NormalizeAppName strips a known executable extension and canonicalizes
// common aliases, so "Code.exe" and "Visual Studio Code" both resolve to
// "vscode". Names without an alias keep their case and lose only
// surrounding whitespace and a known extension ("Foo.exe" -> "Foo").
func NormalizeAppName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "unknown"
	}

	lower := strings.ToLower(name)
	for _, ext := range knownExts {
		if strings.HasSuffix(lower, ext) {
			name = name[:len(name)-len(ext)]
			lower = lower[:len(lower)-len(ext)]
			break
		}
	}

	if canon, ok := aliases[lower]; ok {
		return canon
	}
	return name
}
