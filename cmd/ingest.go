package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grimoire-ai/grimoire/db"
	"github.com/grimoire-ai/grimoire/internal/config"
	"github.com/grimoire-ai/grimoire/internal/embedding"
	"github.com/grimoire-ai/grimoire/internal/ingest"
	"github.com/grimoire-ai/grimoire/internal/log"
	"github.com/grimoire-ai/grimoire/internal/store"
)

var ingestFlags struct {
	source        string
	categories    []string
	clear         bool
	dryRun        bool
	skipEmbedding bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest game data into the vector store",
	Long: `Ingest walks a directory tree of per-category record files, extracts
and normalizes their rich-text content, splits it into chunks, generates
embeddings, and writes the result to the vector store.

A dry run parses and chunks only, reporting counts and the projected
embedding cost without touching the provider or the database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runIngest(ctx, cfg, logger, cmd)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.source, "source", "./data", "root directory of per-category record files")
	ingestCmd.Flags().StringSliceVar(&ingestFlags.categories, "categories", nil, "restrict ingestion to these categories")
	ingestCmd.Flags().BoolVar(&ingestFlags.clear, "clear", false, "delete all existing chunks before writing")
	ingestCmd.Flags().BoolVar(&ingestFlags.dryRun, "dry-run", false, "parse and chunk only, no embedding or writes")
	ingestCmd.Flags().BoolVar(&ingestFlags.skipEmbedding, "skip-embedding", false, "write chunks without embedding vectors")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, cfg *config.Config, logger log.Logger, cmd *cobra.Command) error {
	if err := cfg.ValidateChunking(); err != nil {
		return err
	}

	pipeline := &ingest.Pipeline{
		Extractor:      &ingest.Extractor{MinContentChars: cfg.MinContentChars},
		Chunker:        &ingest.Chunker{MaxChars: cfg.MaxChunkChars, OverlapChars: cfg.ChunkOverlapChars},
		Logger:         logger,
		EmbedBatchSize: cfg.EmbeddingBatchSize,
		DBBatchSize:    cfg.DBBatchSize,
	}

	if !ingestFlags.dryRun {
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			return err
		}

		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pipeline.Store, err = store.New(pool, logger)
		if err != nil {
			return err
		}

		if !ingestFlags.skipEmbedding {
			if err := cfg.ValidateEmbedding(); err != nil {
				return err
			}
			pipeline.Embedder = embedding.NewClient(embedding.Config{
				Endpoint:         cfg.AzureOpenAIEndpoint,
				APIKey:           cfg.AzureOpenAIAPIKey,
				APIVersion:       cfg.AzureOpenAIAPIVersion,
				Deployment:       cfg.EmbeddingDeploymentName,
				Dimensions:       cfg.EmbeddingDimensions,
				RetryWait:        cfg.RetryWait,
				MaxServerRetries: cfg.MaxServerRetries,
				BatchDelay:       cfg.EmbeddingDelay,
			}, logger)
		}
	}

	summary, err := pipeline.Run(ctx, ingest.Options{
		DataDir:       ingestFlags.source,
		Categories:    ingestFlags.categories,
		Clear:         ingestFlags.clear,
		DryRun:        ingestFlags.dryRun,
		SkipEmbedding: ingestFlags.skipEmbedding,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.String())
	return nil
}
