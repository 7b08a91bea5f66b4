package main

import (
	"github.com/spf13/cobra"

	"github.com/landrecs/deedflow/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deedflow",
	Short: "Land-title book splitting and extraction pipeline",
	Long: `Deedflow turns scanned county record books into individual recorded
instruments with structured index data.

The pipeline includes:
  - Filing stamp detection on each page with a vision model
  - Incremental slice planning that splits pages into documents
  - PDF artifact assembly with overlap padding
  - Batched fact extraction (grantors, grantees, recording references)
  - Idempotent persistence with exactly-once effect per message`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.deedflow/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
}
