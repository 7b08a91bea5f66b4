package books

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/landrecs/deedflow/internal/blob"
	"github.com/landrecs/deedflow/internal/inference"
	"github.com/landrecs/deedflow/internal/store"
	"github.com/landrecs/deedflow/internal/types"
)

func detectorFixture(t *testing.T) (*blob.MemoryStore, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	jobs := store.NewMemoryStore()
	if err := jobs.CreateBookJob(ctx, "b1", "48113", "dallas"); err != nil {
		t.Fatal(err)
	}
	return blobs, jobs
}

func TestDetectBatchMapsStamps(t *testing.T) {
	ctx := context.Background()
	blobs, jobs := detectorFixture(t)

	pages := []types.PageRef{
		{Key: "books/b1/pages/0001.png", Number: 1},
		{Key: "books/b1/pages/0002.png", Number: 2},
	}
	for _, p := range pages {
		if err := blobs.Put(ctx, p.Key, []byte("png"), "image/png"); err != nil {
			t.Fatal(err)
		}
	}

	mock := inference.NewMockService()
	// Response order differs from request order; mapping is by pageKey.
	mock.Responses = []json.RawMessage{json.RawMessage(`{
		"pages": [
			{"pageKey": "books/b1/pages/0002.png", "pageNumber": 2, "stamps": []},
			{"pageKey": "books/b1/pages/0001.png", "pageNumber": 1, "stamps": [
				{"yPosPercent": 42.5, "transcription": "FILED JAN 3 1952", "visualContext": "circular stamp, right margin"}
			]}
		]
	}`)}

	d := NewDetector(mock, blobs, jobs, nil)
	result, err := d.DetectBatch(ctx, "b1", pages)
	if err != nil {
		t.Fatalf("DetectBatch: %v", err)
	}
	if result.Skipped {
		t.Fatalf("batch skipped: %s", result.Reason)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(result.Pages))
	}
	if result.Pages[0].Page.Number != 1 || len(result.Pages[0].Stamps) != 1 {
		t.Errorf("page 1 detections = %+v", result.Pages[0])
	}
	if result.Pages[0].Stamps[0].YPosPercent != 42.5 {
		t.Errorf("yPosPercent = %v, want 42.5", result.Pages[0].Stamps[0].YPosPercent)
	}
	if len(result.Pages[1].Stamps) != 0 {
		t.Errorf("page 2 should have no stamps: %+v", result.Pages[1])
	}

	job, err := jobs.GetBookJob(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if job.PagesProcessed != 2 {
		t.Errorf("pagesProcessed = %d, want 2", job.PagesProcessed)
	}
}

func TestDetectBatchSkipsOnFailure(t *testing.T) {
	ctx := context.Background()
	pages := []types.PageRef{{Key: "books/b1/pages/0001.png", Number: 1}}

	t.Run("missing page image", func(t *testing.T) {
		blobs, jobs := detectorFixture(t)
		d := NewDetector(inference.NewMockService(), blobs, jobs, nil)

		result, err := d.DetectBatch(ctx, "b1", pages)
		if err != nil {
			t.Fatalf("DetectBatch: %v", err)
		}
		if !result.Skipped {
			t.Error("batch with unfetchable page must be skipped")
		}
	})

	t.Run("inference failure", func(t *testing.T) {
		blobs, jobs := detectorFixture(t)
		if err := blobs.Put(ctx, pages[0].Key, []byte("png"), "image/png"); err != nil {
			t.Fatal(err)
		}
		mock := inference.NewMockService()
		mock.Err = errors.New("model unavailable")
		d := NewDetector(mock, blobs, jobs, nil)

		result, err := d.DetectBatch(ctx, "b1", pages)
		if err != nil {
			t.Fatalf("DetectBatch: %v", err)
		}
		if !result.Skipped {
			t.Error("batch with failed inference must be skipped")
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		blobs, jobs := detectorFixture(t)
		if err := blobs.Put(ctx, pages[0].Key, []byte("png"), "image/png"); err != nil {
			t.Fatal(err)
		}
		mock := inference.NewMockService()
		mock.Responses = []json.RawMessage{json.RawMessage(`not json`)}
		d := NewDetector(mock, blobs, jobs, nil)

		result, err := d.DetectBatch(ctx, "b1", pages)
		if err != nil {
			t.Fatalf("DetectBatch: %v", err)
		}
		if !result.Skipped {
			t.Error("batch with malformed response must be skipped")
		}

		// Skipped batches do not advance the progress counter.
		job, err := jobs.GetBookJob(ctx, "b1")
		if err != nil {
			t.Fatal(err)
		}
		if job.PagesProcessed != 0 {
			t.Errorf("pagesProcessed = %d, want 0", job.PagesProcessed)
		}
	})
}

func TestDetectBatchEmptyInput(t *testing.T) {
	blobs, jobs := detectorFixture(t)
	d := NewDetector(inference.NewMockService(), blobs, jobs, nil)
	result, err := d.DetectBatch(context.Background(), "b1", nil)
	if err != nil {
		t.Fatalf("DetectBatch: %v", err)
	}
	if result.Skipped || len(result.Pages) != 0 {
		t.Errorf("empty batch result = %+v", result)
	}
}
