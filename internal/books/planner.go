package books

import (
	"sort"

	"github.com/landrecs/deedflow/internal/types"
)

const (
	// minSliceHeightPercent is the smallest vertical region worth
	// keeping as its own slice.
	minSliceHeightPercent = 2.0

	// overlapPadPercent widens every slice boundary to tolerate
	// stamp-position imprecision across the physical fold between
	// scans.
	overlapPadPercent = 10.0
)

// Planner turns an ordered stream of per-page stamp detections into
// logical documents. It is pure and deterministic: feed pages in book
// order via ObservePage, then call Finish. The planner carries
// page-sequential state and must be driven by a single stream per
// book; parallel detection fan-out has to re-serialize into page
// order before feeding it.
//
// A filing stamp always closes the document in progress, so the
// number of documents emitted equals the number of stamps observed. A
// page without stamps contributes its full height to whichever
// document is open, and the trailing open document at end of book is
// discarded rather than guessed at.
type Planner struct {
	open types.LogicalDocument

	prevKey    string
	prevPage   int
	prevCursor float64
	hasPrev    bool

	stampsSeen   int
	docsEmitted  int
	pagesPlanned int
}

// NewPlanner creates a planner with an empty document open.
func NewPlanner() *Planner {
	return &Planner{}
}

// ObservePage consumes one page's detections (any order; sorted
// internally) and returns the logical documents closed by this page,
// in order.
func (p *Planner) ObservePage(page types.PageRef, stamps []types.StampDetection) []types.LogicalDocument {
	p.pagesPlanned++

	// A page that ended mid-document leaves its tail for the next
	// iteration: append it now, padded upward, if it is tall enough
	// to matter.
	if p.hasPrev && p.prevCursor < 100 && 100-p.prevCursor >= minSliceHeightPercent {
		p.open.Slices = append(p.open.Slices, types.Slice{
			PageKey:       p.prevKey,
			PageNumber:    p.prevPage,
			YStartPercent: clampPercent(p.prevCursor - overlapPadPercent),
			YEndPercent:   100,
		})
	}

	cursor := 0.0
	var closed []types.LogicalDocument

	if len(stamps) == 0 {
		// No boundary on this page: the whole page belongs to the
		// open document.
		p.open.Slices = append(p.open.Slices, types.Slice{
			PageKey:       page.Key,
			PageNumber:    page.Number,
			YStartPercent: 0,
			YEndPercent:   100,
		})
		cursor = 100
	} else {
		ordered := make([]types.StampDetection, len(stamps))
		copy(ordered, stamps)
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].YPosPercent < ordered[j].YPosPercent
		})

		for _, stamp := range ordered {
			p.stampsSeen++
			if stamp.YPosPercent-cursor >= minSliceHeightPercent {
				p.open.Slices = append(p.open.Slices, types.Slice{
					PageKey:       page.Key,
					PageNumber:    page.Number,
					YStartPercent: clampPercent(cursor - overlapPadPercent),
					YEndPercent:   clampPercent(stamp.YPosPercent + overlapPadPercent),
				})
			}
			// The stamp terminates the document in progress even if
			// the region above it was too thin to keep; in that
			// degenerate case the document closes with only its
			// carried-over tail, or empty.
			closed = append(closed, p.open)
			p.docsEmitted++
			p.open = types.LogicalDocument{}
			cursor = stamp.YPosPercent
		}
	}

	p.prevKey = page.Key
	p.prevPage = page.Number
	p.prevCursor = cursor
	p.hasPrev = true

	return closed
}

// Finish ends the stream. The final open document has no closing
// stamp and is discarded; Finish reports whether a non-empty tail was
// dropped.
func (p *Planner) Finish() bool {
	discarded := !p.open.Empty() || (p.hasPrev && p.prevCursor < 100)
	p.open = types.LogicalDocument{}
	return discarded
}

// StampsSeen returns the total stamps observed so far. By
// construction it equals the number of documents emitted.
func (p *Planner) StampsSeen() int { return p.stampsSeen }

// DocumentsEmitted returns the number of documents closed so far.
func (p *Planner) DocumentsEmitted() int { return p.docsEmitted }

// PagesPlanned returns how many pages have been fed in.
func (p *Planner) PagesPlanned() int { return p.pagesPlanned }

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
