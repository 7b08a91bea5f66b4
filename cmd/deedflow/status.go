package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/landrecs/deedflow/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status <book-id>",
	Short: "Show progress counters for a book job",
	Args:  cobra.ExactArgs(1),
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

		view, err := d.jobs.BookJobStatus(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(view)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
