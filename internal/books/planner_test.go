package books

import (
	"testing"

	"github.com/landrecs/deedflow/internal/types"
)

func page(n int) types.PageRef {
	return types.PageRef{Key: pageKey(n), Number: n}
}

func pageKey(n int) string {
	return "books/b1/pages/000" + string(rune('0'+n)) + ".png"
}

func stamp(y float64) types.StampDetection {
	return types.StampDetection{YPosPercent: y, Transcription: "FILED"}
}

func TestPlannerSplitAcrossPages(t *testing.T) {
	p := NewPlanner()

	// Page 1: stamp at 40%, page 2: no stamps, page 3: stamp at 30%.
	docs := p.ObservePage(page(1), []types.StampDetection{stamp(40)})
	if len(docs) != 1 {
		t.Fatalf("page 1: got %d docs, want 1", len(docs))
	}
	first := docs[0]
	if len(first.Slices) != 1 {
		t.Fatalf("first doc: got %d slices, want 1", len(first.Slices))
	}
	if s := first.Slices[0]; s.YStartPercent != 0 || s.YEndPercent != 50 {
		t.Errorf("first slice bounds = [%v, %v], want [0, 50]", s.YStartPercent, s.YEndPercent)
	}

	docs = p.ObservePage(page(2), nil)
	if len(docs) != 0 {
		t.Fatalf("page 2: got %d docs, want 0", len(docs))
	}

	docs = p.ObservePage(page(3), []types.StampDetection{stamp(30)})
	if len(docs) != 1 {
		t.Fatalf("page 3: got %d docs, want 1", len(docs))
	}
	second := docs[0]
	if len(second.Slices) != 3 {
		t.Fatalf("second doc: got %d slices, want 3", len(second.Slices))
	}
	// Tail of page 1 widened upward by the overlap pad.
	if s := second.Slices[0]; s.PageNumber != 1 || s.YStartPercent != 30 || s.YEndPercent != 100 {
		t.Errorf("carried tail = page %d [%v, %v], want page 1 [30, 100]",
			s.PageNumber, s.YStartPercent, s.YEndPercent)
	}
	if s := second.Slices[1]; s.PageNumber != 2 || s.YStartPercent != 0 || s.YEndPercent != 100 {
		t.Errorf("full page slice = page %d [%v, %v], want page 2 [0, 100]",
			s.PageNumber, s.YStartPercent, s.YEndPercent)
	}
	if s := second.Slices[2]; s.PageNumber != 3 || s.YStartPercent != 0 || s.YEndPercent != 40 {
		t.Errorf("head slice = page %d [%v, %v], want page 3 [0, 40]",
			s.PageNumber, s.YStartPercent, s.YEndPercent)
	}

	// The content below page 3's stamp has no closing stamp.
	if !p.Finish() {
		t.Error("Finish() = false, want trailing content discarded")
	}
	if p.DocumentsEmitted() != p.StampsSeen() {
		t.Errorf("documents %d != stamps %d", p.DocumentsEmitted(), p.StampsSeen())
	}
}

func TestPlannerDocumentsEqualStamps(t *testing.T) {
	cases := []struct {
		name   string
		stamps [][]float64 // per page
		want   int
	}{
		{"no stamps", [][]float64{nil, nil, nil}, 0},
		{"one per page", [][]float64{{50}, {50}, {50}}, 3},
		{"several on one page", [][]float64{{10, 40, 90}, nil}, 3},
		{"adjacent stamps", [][]float64{{30, 31}}, 2},
		{"stamp at top edge", [][]float64{{0}, {100}}, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPlanner()
			emitted := 0
			for i, ys := range tc.stamps {
				stamps := make([]types.StampDetection, 0, len(ys))
				for _, y := range ys {
					stamps = append(stamps, stamp(y))
				}
				emitted += len(p.ObservePage(page(i+1), stamps))
			}
			p.Finish()

			if emitted != tc.want {
				t.Errorf("emitted %d documents, want %d", emitted, tc.want)
			}
			if p.StampsSeen() != tc.want {
				t.Errorf("StampsSeen() = %d, want %d", p.StampsSeen(), tc.want)
			}
			if p.DocumentsEmitted() != emitted {
				t.Errorf("DocumentsEmitted() = %d, want %d", p.DocumentsEmitted(), emitted)
			}
		})
	}
}

func TestPlannerUnsortedStamps(t *testing.T) {
	p := NewPlanner()
	docs := p.ObservePage(page(1), []types.StampDetection{stamp(60), stamp(20)})
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	// Regions must come out in top-to-bottom order regardless of
	// detection order.
	if s := docs[0].Slices[0]; s.YEndPercent != 30 {
		t.Errorf("first doc ends at %v, want 30", s.YEndPercent)
	}
	if s := docs[1].Slices[0]; s.YStartPercent != 10 || s.YEndPercent != 70 {
		t.Errorf("second doc bounds = [%v, %v], want [10, 70]", s.YStartPercent, s.YEndPercent)
	}
}

func TestPlannerThinRegionsSkipped(t *testing.T) {
	p := NewPlanner()

	// Both stamps close a document, but the sliver between them is
	// below the height floor and yields no slice.
	docs := p.ObservePage(page(1), []types.StampDetection{stamp(50), stamp(51)})
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if !docs[1].Empty() {
		t.Errorf("sliver document has %d slices, want 0", len(docs[1].Slices))
	}

	// A stamp near the page bottom leaves a tail too thin to carry.
	p2 := NewPlanner()
	p2.ObservePage(page(1), []types.StampDetection{stamp(99)})
	docs = p2.ObservePage(page(2), []types.StampDetection{stamp(50)})
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	for _, s := range docs[0].Slices {
		if s.PageNumber == 1 {
			t.Errorf("thin page 1 tail was carried: [%v, %v]", s.YStartPercent, s.YEndPercent)
		}
	}
}

func TestPlannerFinishOnEmptyStream(t *testing.T) {
	p := NewPlanner()
	if p.Finish() {
		t.Error("Finish() = true on empty stream, want false")
	}
}

func TestPlannerFinishAfterClosingStampAtBottom(t *testing.T) {
	p := NewPlanner()
	p.ObservePage(page(1), []types.StampDetection{stamp(100)})
	if p.Finish() {
		t.Error("Finish() = true, want false when the last stamp sits at the page bottom")
	}
}
