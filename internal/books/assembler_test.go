package books

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/queue"
	"github.com/landrecs/deedflow/internal/store"
	"github.com/landrecs/deedflow/internal/types"
)

// makePNG renders a white page image of the given pixel size.
func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAssembleProducesArtifact(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	jobs := store.NewMemoryStore()
	docs := store.NewMemoryStore()
	q := queue.NewMemoryQueue(time.Minute)

	if err := jobs.CreateBookJob(ctx, "b1", "48113", "dallas"); err != nil {
		t.Fatal(err)
	}
	if err := blobs.Put(ctx, "books/b1/pages/0001.png", makePNG(t, 80, 200), "image/png"); err != nil {
		t.Fatal(err)
	}

	a := NewAssembler(blobs, docs, jobs, q, nil)
	book := queue.BookRequest{BookID: "b1", CountyID: "48113", CountyName: "dallas"}
	doc := types.LogicalDocument{Slices: []types.Slice{
		{PageKey: "books/b1/pages/0001.png", PageNumber: 1, YStartPercent: 0, YEndPercent: 50},
	}}

	ok, err := a.Assemble(ctx, book, doc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !ok {
		t.Fatal("Assemble dropped a healthy document")
	}

	pdf, err := blobs.Get(ctx, "dallas/0000000001.pdf")
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("artifact is not a PDF")
	}
	if _, err := blobs.Get(ctx, "dallas/0000000001/pages/0001.png"); err != nil {
		t.Errorf("artifact page missing: %v", err)
	}

	msgs, err := q.Receive(ctx, queue.Extraction, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d extraction messages, want 1", len(msgs))
	}
	var req queue.ExtractionRequest
	if err := json.Unmarshal(msgs[0].Body, &req); err != nil {
		t.Fatal(err)
	}
	if req.PRSERV != "0000000001" || req.ArtifactKey != "dallas/0000000001" || req.BookID != "b1" {
		t.Errorf("extraction request = %+v", req)
	}

	job, err := jobs.GetBookJob(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if job.DocumentsCreated != 1 || job.DocumentsQueuedForAI != 1 {
		t.Errorf("counters = created %d, queued %d, want 1/1",
			job.DocumentsCreated, job.DocumentsQueuedForAI)
	}
}

func TestAssembleDropsSubPixelDocument(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	jobs := store.NewMemoryStore()
	docs := store.NewMemoryStore()
	q := queue.NewMemoryQueue(time.Minute)

	if err := jobs.CreateBookJob(ctx, "b1", "48113", "dallas"); err != nil {
		t.Fatal(err)
	}
	// On a 20px page even the padded band renders below the pixel
	// floor.
	if err := blobs.Put(ctx, "books/b1/pages/0001.png", makePNG(t, 80, 20), "image/png"); err != nil {
		t.Fatal(err)
	}

	a := NewAssembler(blobs, docs, jobs, q, nil)
	book := queue.BookRequest{BookID: "b1", CountyID: "48113", CountyName: "dallas"}
	doc := types.LogicalDocument{Slices: []types.Slice{
		{PageKey: "books/b1/pages/0001.png", PageNumber: 1, YStartPercent: 0, YEndPercent: 2},
	}}

	ok, err := a.Assemble(ctx, book, doc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if ok {
		t.Error("document below the pixel floor must be dropped")
	}

	if docs.DocumentCount() != 0 {
		t.Errorf("dropped document still registered: %d records", docs.DocumentCount())
	}
	if q.Depth(queue.Extraction) != 0 {
		t.Errorf("dropped document still enqueued")
	}
	job, err := jobs.GetBookJob(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if job.DocumentsCreated != 0 {
		t.Errorf("documentsCreated = %d, want 0", job.DocumentsCreated)
	}
}

func TestAssembleKeepsTallSlicesDropsThin(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	jobs := store.NewMemoryStore()
	docs := store.NewMemoryStore()
	q := queue.NewMemoryQueue(time.Minute)

	if err := jobs.CreateBookJob(ctx, "b1", "48113", "dallas"); err != nil {
		t.Fatal(err)
	}
	if err := blobs.Put(ctx, "books/b1/pages/0001.png", makePNG(t, 80, 400), "image/png"); err != nil {
		t.Fatal(err)
	}
	if err := blobs.Put(ctx, "books/b1/pages/0002.png", makePNG(t, 80, 20), "image/png"); err != nil {
		t.Fatal(err)
	}

	a := NewAssembler(blobs, docs, jobs, q, nil)
	book := queue.BookRequest{BookID: "b1", CountyID: "48113", CountyName: "dallas"}
	doc := types.LogicalDocument{Slices: []types.Slice{
		{PageKey: "books/b1/pages/0001.png", PageNumber: 1, YStartPercent: 10, YEndPercent: 60},
		{PageKey: "books/b1/pages/0002.png", PageNumber: 2, YStartPercent: 0, YEndPercent: 2},
	}}

	ok, err := a.Assemble(ctx, book, doc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !ok {
		t.Fatal("document with one healthy slice must survive")
	}

	// Only the surviving crop becomes an artifact page.
	if _, err := blobs.Get(ctx, "dallas/0000000001/pages/0001.png"); err != nil {
		t.Errorf("surviving page missing: %v", err)
	}
	if _, err := blobs.Get(ctx, "dallas/0000000001/pages/0002.png"); err == nil {
		t.Error("thin slice should not have produced a page")
	}
}
