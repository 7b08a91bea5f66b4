package books

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/queue"
	"github.com/landrecs/deedflow/internal/store"
	"github.com/landrecs/deedflow/internal/types"
)

const (
	// assembleExtraPadPercent re-expands every slice's lower bound
	// beyond the planner's cut to give OCR some margin.
	assembleExtraPadPercent = 25.0

	// minCropHeightPixels guards against degenerate clamps: crops
	// shorter than this are dropped before assembly.
	minCropHeightPixels = 12
)

// Assembler renders a logical document's slices to raster pages,
// binds them into one PDF artifact, registers the document record and
// enqueues it for extraction.
type Assembler struct {
	blobs  blob.Store
	docs   store.DocumentStore
	jobs   store.JobStore
	q      queue.Queue
	logger *slog.Logger
}

// NewAssembler wires the assembler's collaborators.
func NewAssembler(blobs blob.Store, docs store.DocumentStore, jobs store.JobStore, q queue.Queue, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		blobs:  blobs,
		docs:   docs,
		jobs:   jobs,
		q:      q,
		logger: logger.With("component", "assembler"),
	}
}

// Assemble produces the artifact for one logical document. It returns
// false when every slice collapsed below the pixel floor and the
// document was dropped, an expected non-error outcome for
// pathologically thin slices.
func (a *Assembler) Assemble(ctx context.Context, book queue.BookRequest, doc types.LogicalDocument) (bool, error) {
	log := a.logger.With("book_id", book.BookID)

	var pages []*cropResult
	for _, slice := range doc.Slices {
		data, err := a.blobs.Get(ctx, slice.PageKey)
		if err != nil {
			return false, fmt.Errorf("failed to fetch page %s: %w", slice.PageKey, err)
		}

		yEnd := slice.YEndPercent + assembleExtraPadPercent
		if yEnd > 100 {
			yEnd = 100
		}
		crop, err := cropPage(data, slice.YStartPercent, yEnd)
		if err != nil {
			return false, fmt.Errorf("failed to crop page %s: %w", slice.PageKey, err)
		}
		if crop.HeightPx < minCropHeightPixels {
			log.Debug("slice below pixel floor, dropped",
				"page_key", slice.PageKey,
				"height_px", crop.HeightPx,
			)
			continue
		}
		pages = append(pages, crop)
	}

	if len(pages) == 0 {
		log.Info("logical document produced no pages, dropped", "slices", len(doc.Slices))
		return false, nil
	}

	documentID, prserv, err := a.docs.CreateDocument(ctx, book.CountyID)
	if err != nil {
		return false, fmt.Errorf("failed to create document record: %w", err)
	}
	if err := a.jobs.AddDocumentsCreated(ctx, book.BookID, 1); err != nil {
		return false, err
	}

	artifact, err := bindPDF(pages)
	if err != nil {
		return false, fmt.Errorf("failed to bind artifact for document %d: %w", documentID, err)
	}

	baseKey := fmt.Sprintf("%s/%s", book.CountyName, prserv)
	if err := a.blobs.Put(ctx, baseKey+".pdf", artifact, "application/pdf"); err != nil {
		return false, fmt.Errorf("failed to upload artifact: %w", err)
	}
	for i, page := range pages {
		key := fmt.Sprintf("%s/pages/%04d.png", baseKey, i+1)
		if err := a.blobs.Put(ctx, key, page.PNG, "image/png"); err != nil {
			return false, fmt.Errorf("failed to upload artifact page: %w", err)
		}
	}

	body, err := json.Marshal(queue.ExtractionRequest{
		DocumentID:  documentID,
		PRSERV:      prserv,
		CountyID:    book.CountyID,
		CountyName:  book.CountyName,
		ArtifactKey: baseKey,
		BookID:      book.BookID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal extraction request: %w", err)
	}
	if err := a.q.Send(ctx, queue.Extraction, body); err != nil {
		return false, fmt.Errorf("failed to enqueue extraction: %w", err)
	}

	if err := a.jobs.AddDocumentsQueuedForAI(ctx, book.BookID, 1); err != nil {
		return false, err
	}

	log.Info("artifact assembled",
		"document_id", documentID,
		"prserv", prserv,
		"pages", len(pages),
	)
	return true, nil
}

// bindPDF imports the page PNGs, in slice order, into a single
// paginated PDF.
func bindPDF(pages []*cropResult) ([]byte, error) {
	readers := make([]io.Reader, len(pages))
	for i, p := range pages {
		readers[i] = bytes.NewReader(p.PNG)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, nil, conf); err != nil {
		return nil, fmt.Errorf("pdf import failed: %w", err)
	}
	return buf.Bytes(), nil
}
