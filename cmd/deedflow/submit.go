package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/landrecs/deedflow/internal/books"
	"github.com/landrecs/deedflow/internal/config"
	"github.com/landrecs/deedflow/internal/queue"
)

var (
	submitBookID     string
	submitCountyID   string
	submitCountyName string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a scanned book for processing",
	Long: `Create a pending book job and enqueue it on the book-processing queue.

The book's page images must already be uploaded to the object store
under books/{book-id}/pages/ with numeric page suffixes. Without
--book a fresh book ID is generated and printed.

Examples:
  deedflow submit --county-id 48113 --county-name dallas --book deed-book-412`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		d, err := buildDeps(ctx, cm.Get(), logger)
		if err != nil {
			return err
		}
		defer d.Close()

		bookID := submitBookID
		if bookID == "" {
			bookID = uuid.NewString()
		}

		if err := d.jobs.CreateBookJob(ctx, bookID, submitCountyID, submitCountyName); err != nil {
			return err
		}
		body, err := json.Marshal(queue.BookRequest{
			BookID:     bookID,
			CountyID:   submitCountyID,
			CountyName: submitCountyName,
		})
		if err != nil {
			return err
		}
		if err := d.queue.Send(ctx, queue.BookProcessing, body); err != nil {
			return err
		}

		fmt.Printf("submitted book %s\n", bookID)
		fmt.Printf("  pages expected under: %s\n", books.PageKeyPrefix(bookID))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitBookID, "book", "", "book ID (generated when omitted)")
	submitCmd.Flags().StringVar(&submitCountyID, "county-id", "", "county FIPS or internal ID")
	submitCmd.Flags().StringVar(&submitCountyName, "county-name", "", "county name used in artifact paths")

	_ = submitCmd.MarkFlagRequired("county-id")
	_ = submitCmd.MarkFlagRequired("county-name")

	rootCmd.AddCommand(submitCmd)
}
