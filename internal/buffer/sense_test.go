package buffer

import (
	"testing"

	"github.com/sinain-hud/core/internal/model"
)

func TestSenseBuffer_CapAndMonotonicity(t *testing.T) {
	b := NewSenseBuffer(3)
	for i := 0; i < 5; i++ {
		if _, err := b.Push(model.SenseEvent{Type: model.SenseVisual}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if b.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", b.Size())
	}
	items := b.Query(0, false)
	if items[0].ID != 3 {
		t.Fatalf("oldest retained id = %d, want 3", items[0].ID)
	}
}

func TestSenseBuffer_MetaOnlyStripsBinary(t *testing.T) {
	b := NewSenseBuffer(10)
	b.Push(model.SenseEvent{Type: model.SenseVisual, ROIData: []byte{1, 2, 3}, DiffData: []byte{4, 5}})

	withBinary := b.Query(0, false)
	if len(withBinary[0].ROIData) == 0 {
		t.Fatal("expected roi.data present when metaOnly=false")
	}

	stripped := b.Query(0, true)
	if stripped[0].ROIData != nil || stripped[0].DiffData != nil {
		t.Fatalf("metaOnly query leaked binary payload: %+v", stripped[0])
	}
}

func TestSenseBuffer_LatestApp(t *testing.T) {
	b := NewSenseBuffer(10)
	if got := b.LatestApp(); got != "unknown" {
		t.Fatalf("LatestApp() on empty buffer = %q, want unknown", got)
	}
	b.Push(model.SenseEvent{Type: model.SenseVisual, Meta: model.SenseMeta{App: "Code"}})
	if got := b.LatestApp(); got != "Code" {
		t.Fatalf("LatestApp() = %q, want Code", got)
	}
}

func TestSenseBuffer_AppHistoryNoCompactionOfNonAdjacent(t *testing.T) {
	b := NewSenseBuffer(10)
	b.Push(model.SenseEvent{Type: model.SenseVisual, TS: 100, Meta: model.SenseMeta{App: "A"}})
	b.Push(model.SenseEvent{Type: model.SenseVisual, TS: 200, Meta: model.SenseMeta{App: "B"}})
	b.Push(model.SenseEvent{Type: model.SenseVisual, TS: 300, Meta: model.SenseMeta{App: "A"}})

	hist := b.AppHistory(0)
	if len(hist) != 3 {
		t.Fatalf("AppHistory len = %d, want 3 (A, B, A not compacted)", len(hist))
	}
	want := []string{"A", "B", "A"}
	for i, tr := range hist {
		if tr.App != want[i] {
			t.Errorf("hist[%d].App = %q, want %q", i, tr.App, want[i])
		}
	}
}

func TestSenseBuffer_AppHistoryCollapsesAdjacentDuplicates(t *testing.T) {
	b := NewSenseBuffer(10)
	b.Push(model.SenseEvent{Type: model.SenseVisual, TS: 100, Meta: model.SenseMeta{App: "A"}})
	b.Push(model.SenseEvent{Type: model.SenseVisual, TS: 200, Meta: model.SenseMeta{App: "A"}})
	b.Push(model.SenseEvent{Type: model.SenseVisual, TS: 300, Meta: model.SenseMeta{App: "B"}})

	hist := b.AppHistory(0)
	if len(hist) != 2 {
		t.Fatalf("AppHistory len = %d, want 2 (adjacent A,A collapsed)", len(hist))
	}
}

func TestSenseBuffer_BadInput(t *testing.T) {
	b := NewSenseBuffer(10)
	if _, err := b.Push(model.SenseEvent{}); err != ErrBadInput {
		t.Fatalf("err = %v, want ErrBadInput", err)
	}
}
