package books

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/inference"
	"github.com/landrecs/deedflow/internal/store"
	"github.com/landrecs/deedflow/internal/types"
)

// DefaultDetectorBatchSize is the validated configuration: one page
// per inference call. Larger batches are structurally supported but
// reduce detection reliability.
const DefaultDetectorBatchSize = 1

const stampSchemaName = "filing_stamp_detections"

// stampSchema is the strict response contract for boundary detection:
// every requested page comes back with its key, its absolute page
// number and a (possibly empty) array of stamp detections.
const stampSchema = `{
  "type": "object",
  "properties": {
    "pages": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "pageKey": {"type": "string"},
          "pageNumber": {"type": "integer"},
          "stamps": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "yPosPercent": {"type": "number", "minimum": 0, "maximum": 100},
                "transcription": {"type": "string"},
                "visualContext": {"type": "string"}
              },
              "required": ["yPosPercent", "transcription", "visualContext"],
              "additionalProperties": false
            }
          }
        },
        "required": ["pageKey", "pageNumber", "stamps"],
        "additionalProperties": false
      }
    }
  },
  "required": ["pages"],
  "additionalProperties": false
}`

const stampInstructions = `You analyze scanned pages from county land-record books. ` +
	`Find every official "FILED" / "filed for record" stamp on each page. ` +
	`Each physical stamp must be reported exactly once, even when it contains ` +
	`several co-located sub-phrases (date line, clerk signature, fee notation). ` +
	`Report the vertical position of the stamp's center as a percentage of page ` +
	`height (0 = top, 100 = bottom), a transcription of the stamp text, and a ` +
	`one-line description of the surrounding visual context. A page with no ` +
	`filing stamps gets an empty stamps array.`

// PageDetections pairs a page with the stamps found on it.
type PageDetections struct {
	Page   types.PageRef
	Stamps []types.StampDetection
}

// BatchResult is the typed outcome of one detection batch. A skipped
// batch carries no detections and the reason it was skipped; the
// planner treats it as "no new information", which is safe because a
// document boundary is only ever committed on an explicit stamp.
type BatchResult struct {
	Pages   []PageDetections
	Skipped bool
	Reason  string
}

// Detector finds filing-stamp boundaries by calling the inference
// service one page batch at a time.
type Detector struct {
	svc    inference.Service
	blobs  blob.Store
	jobs   store.JobStore
	logger *slog.Logger
}

// NewDetector wires the detector's collaborators.
func NewDetector(svc inference.Service, blobs blob.Store, jobs store.JobStore, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		svc:    svc,
		blobs:  blobs,
		jobs:   jobs,
		logger: logger.With("component", "detector"),
	}
}

// DetectBatch analyzes one batch of pages. Failures never propagate:
// a batch that cannot be fetched, inferred or parsed comes back
// Skipped. On success the job's pagesProcessed counter advances by
// the batch size.
func (d *Detector) DetectBatch(ctx context.Context, bookID string, pages []types.PageRef) (BatchResult, error) {
	if len(pages) == 0 {
		return BatchResult{}, nil
	}
	log := d.logger.With("book_id", bookID, "first_page", pages[0].Number, "batch_size", len(pages))

	images := make([][]byte, 0, len(pages))
	for _, page := range pages {
		data, err := d.blobs.Get(ctx, page.Key)
		if err != nil {
			log.Warn("page fetch failed, skipping batch", "page_key", page.Key, "error", err)
			return BatchResult{Skipped: true, Reason: fmt.Sprintf("fetch %s: %v", page.Key, err)}, nil
		}
		images = append(images, data)
	}

	payload, err := d.svc.Infer(ctx, inference.Request{
		Instructions: stampInstructions,
		Prompt:       batchPrompt(pages),
		Images:       images,
		SchemaName:   stampSchemaName,
		Schema:       json.RawMessage(stampSchema),
	})
	if err != nil {
		log.Warn("detection inference failed, skipping batch", "error", err)
		return BatchResult{Skipped: true, Reason: fmt.Sprintf("inference: %v", err)}, nil
	}

	result, err := parseDetections(payload, pages)
	if err != nil {
		log.Warn("detection response malformed, skipping batch", "error", err)
		return BatchResult{Skipped: true, Reason: fmt.Sprintf("parse: %v", err)}, nil
	}

	if err := d.jobs.AddPagesProcessed(ctx, bookID, len(pages)); err != nil {
		return BatchResult{}, fmt.Errorf("failed to advance pages counter: %w", err)
	}

	stamps := 0
	for _, p := range result {
		stamps += len(p.Stamps)
	}
	log.Debug("batch analyzed", "stamps", stamps)

	return BatchResult{Pages: result}, nil
}

func batchPrompt(pages []types.PageRef) string {
	prompt := "Locate every filing stamp on the attached page images. Page identities, in image order:\n"
	for _, p := range pages {
		prompt += fmt.Sprintf("- pageKey %q, pageNumber %d\n", p.Key, p.Number)
	}
	return prompt
}

// parseDetections maps the response back onto the requested pages, in
// request order. A page missing from the response simply has no
// stamps; extra pages in the response are dropped.
func parseDetections(payload json.RawMessage, pages []types.PageRef) ([]PageDetections, error) {
	var resp struct {
		Pages []struct {
			PageKey    string `json:"pageKey"`
			PageNumber int    `json:"pageNumber"`
			Stamps     []struct {
				YPosPercent   float64 `json:"yPosPercent"`
				Transcription string  `json:"transcription"`
				VisualContext string  `json:"visualContext"`
			} `json:"stamps"`
		} `json:"pages"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}

	byKey := make(map[string][]types.StampDetection, len(resp.Pages))
	for _, p := range resp.Pages {
		stamps := make([]types.StampDetection, 0, len(p.Stamps))
		for _, s := range p.Stamps {
			stamps = append(stamps, types.StampDetection{
				PageKey:       p.PageKey,
				YPosPercent:   s.YPosPercent,
				Transcription: s.Transcription,
				VisualContext: s.VisualContext,
			})
		}
		byKey[p.PageKey] = stamps
	}

	out := make([]PageDetections, 0, len(pages))
	for _, page := range pages {
		out = append(out, PageDetections{Page: page, Stamps: byKey[page.Key]})
	}
	return out, nil
}
