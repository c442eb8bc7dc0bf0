package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grimoire-ai/grimoire/internal/ingest"
)

var analyzeFlags struct {
	source     string
	categories []string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the game data corpus without ingesting it",
	Long: `Analyze extracts and chunks every record the same way ingest would,
then prints per-category statistics, notation reference counts, and the
projected embedding cost. Nothing is embedded or written.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.ValidateChunking(); err != nil {
			return err
		}

		analyzer := &ingest.Analyzer{
			Extractor: &ingest.Extractor{MinContentChars: cfg.MinContentChars},
			Chunker:   &ingest.Chunker{MaxChars: cfg.MaxChunkChars, OverlapChars: cfg.ChunkOverlapChars},
			Logger:    logger,
		}
		report, err := analyzer.Analyze(analyzeFlags.source, analyzeFlags.categories)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), report.String())
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFlags.source, "source", "./data", "root directory of per-category record files")
	analyzeCmd.Flags().StringSliceVar(&analyzeFlags.categories, "categories", nil, "restrict analysis to these categories")
	rootCmd.AddCommand(analyzeCmd)
}
