// Package context assembles the bounded, point-in-time ContextWindow a
// tick operates over. Assemble is a pure function over one snapshot of
// each of the feed and sense buffers: no I/O, no buffer mutation.
package context

import (
	"sort"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/model"
)

// DefaultAgeMS is the default context-window time bound (120s).
const DefaultAgeMS = 120_000

// Assemble takes one snapshot of feed and one of sense (each under that
// buffer's own lock), bounds them to [nowMS-ageMS, nowMS], truncates each
// slice to the richness preset's max-count, and computes the app-history
// chain from the same sense snapshot over the same window.
func Assemble(feed *buffer.FeedBuffer, sense *buffer.SenseBuffer, ageMS int64, currentApp string, richness model.RichnessPreset, nowMS int64) model.ContextWindow {
	sinceMS := nowMS - ageMS

	audio := feed.QueryBySource(model.SourceAudio, sinceMS)
	sort.Slice(audio, func(i, j int) bool { return audio[i].TS > audio[j].TS })
	if len(audio) > richness.MaxAudioEntries {
		audio = audio[:richness.MaxAudioEntries]
	}

	events := sense.Query(0, false)
	screen := filterSinceAndSort(events, sinceMS)
	if len(screen) > richness.MaxScreenEvents {
		screen = screen[:richness.MaxScreenEvents]
	}

	var newest int64
	for _, a := range audio {
		if a.TS > newest {
			newest = a.TS
		}
	}
	for _, s := range screen {
		if s.TS > newest {
			newest = s.TS
		}
	}
	if newest < 0 {
		newest = 0
	}

	// Same rule as SenseBuffer.AppHistory, applied to the snapshot above:
	// chronological order, adjacent repeats collapsed.
	normalized := make([]model.AppTransition, 0, len(events))
	var lastApp string
	for _, ev := range events {
		if ev.TS < sinceMS || (len(normalized) > 0 && ev.Meta.App == lastApp) {
			continue
		}
		lastApp = ev.Meta.App
		normalized = append(normalized, model.AppTransition{App: NormalizeAppName(ev.Meta.App), TS: ev.TS})
	}

	return model.ContextWindow{
		Screen:        screen,
		Audio:         audio,
		NewestEventTS: newest,
		CurrentApp:    NormalizeAppName(currentApp),
		AppHistory:    normalized,
		Richness:      richness,
	}
}

func filterSinceAndSort(events []model.SenseEvent, sinceMS int64) []model.SenseEvent {
	out := make([]model.SenseEvent, 0, len(events))
	for _, e := range events {
		if e.TS >= sinceMS {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS > out[j].TS })
	return out
}
