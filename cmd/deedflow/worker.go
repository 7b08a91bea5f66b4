package main

import (
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/landrecs/deedflow/internal/books"
	"github.com/landrecs/deedflow/internal/config"
	"github.com/landrecs/deedflow/internal/extract"
	"github.com/landrecs/deedflow/internal/inference"
	"github.com/landrecs/deedflow/internal/persist"
	"github.com/landrecs/deedflow/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline workers",
	Long: `Run the book-processing, extraction and persistence consumer loops.

Consumer counts per stage come from the workers section of the config
file. All loops share one process and shut down together on Ctrl+C or
SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.OnChange(func(*config.Config) {
			logger.Info("configuration reloaded, restart workers to apply")
		})
		cm.WatchConfig()
		cfg := cm.Get()

		d, err := buildDeps(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer d.Close()

		svc := inference.NewOpenAIService(inference.OpenAIConfig{
			APIKey:      config.ResolveEnvVars(cfg.Inference.APIKey),
			Model:       cfg.Inference.Model,
			BaseURL:     cfg.Inference.BaseURL,
			Timeout:     cfg.Inference.Timeout(),
			RPS:         cfg.Inference.RateLimit,
			MaxAttempts: cfg.Inference.MaxRetries,
			Logger:      logger,
		})

		detector := books.NewDetector(svc, d.blobs, d.jobs, logger)
		assembler := books.NewAssembler(d.blobs, d.docs, d.jobs, d.queue, logger)
		processor := books.NewProcessor(books.ProcessorConfig{
			Jobs:      d.jobs,
			Blobs:     d.blobs,
			Detector:  detector,
			Assembler: assembler,
			BatchSize: cfg.Workers.DetectionBatchSize,
			Logger:    logger,
		})
		extractor := extract.NewWorker(extract.WorkerConfig{
			Blobs:     d.blobs,
			Inference: svc,
			Jobs:      d.jobs,
			Queue:     d.queue,
			BatchSize: cfg.Workers.ExtractionBatchSize,
			Logger:    logger,
		})
		persister := persist.NewWorker(d.docs, d.jobs, logger)

		wait := cfg.Queue.ReceiveWait()
		var wg sync.WaitGroup
		spawn := func(count int, build func() *queue.Consumer) {
			for i := 0; i < count; i++ {
				c := build()
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.Run(ctx)
				}()
			}
		}

		// The book-processing queue carries no dedup ledger: a
		// redelivered book is absorbed by the job status check instead.
		spawn(cfg.Workers.BookProcessors, func() *queue.Consumer {
			return queue.NewConsumer(queue.ConsumerConfig{
				Queue:   d.queue,
				Name:    queue.BookProcessing,
				Handler: processor.HandleMessage,
				Wait:    wait,
				Logger:  logger,
			})
		})
		spawn(cfg.Workers.Extractors, func() *queue.Consumer {
			return queue.NewConsumer(queue.ConsumerConfig{
				Queue:   d.queue,
				Name:    queue.Extraction,
				Handler: extractor.HandleMessage,
				Ledger:  d.ledger,
				Wait:    wait,
				Logger:  logger,
			})
		})
		spawn(cfg.Workers.Persisters, func() *queue.Consumer {
			return queue.NewConsumer(queue.ConsumerConfig{
				Queue:   d.queue,
				Name:    queue.Persistence,
				Handler: persister.HandleMessage,
				Ledger:  d.ledger,
				Wait:    wait,
				Logger:  logger,
			})
		})

		logger.Info("workers started",
			"book_processors", cfg.Workers.BookProcessors,
			"extractors", cfg.Workers.Extractors,
			"persisters", cfg.Workers.Persisters,
		)
		wg.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
