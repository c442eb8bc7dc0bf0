package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grimoire-ai/grimoire/internal/embedding"
	"github.com/grimoire-ai/grimoire/internal/store"
)

var searchFlags struct {
	topK      int
	threshold float64
	category  string
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the vector store directly",
	Long: `Search embeds the query and prints the nearest rule chunks with their
similarity scores. Useful for inspecting retrieval quality without
running a chat completion.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}
		if err := cfg.ValidateEmbedding(); err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		st, err := store.New(pool, logger)
		if err != nil {
			return err
		}

		client := embedding.NewClient(embedding.Config{
			Endpoint:         cfg.AzureOpenAIEndpoint,
			APIKey:           cfg.AzureOpenAIAPIKey,
			APIVersion:       cfg.AzureOpenAIAPIVersion,
			Deployment:       cfg.EmbeddingDeploymentName,
			Dimensions:       cfg.EmbeddingDimensions,
			RetryWait:        cfg.RetryWait,
			MaxServerRetries: cfg.MaxServerRetries,
		}, logger)

		query := strings.Join(args, " ")
		vector, err := client.EmbedQuery(ctx, query)
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}

		opts := []store.SearchOption{
			store.WithTopK(orDefault(searchFlags.topK, cfg.TopK)),
			store.WithThreshold(orDefaultF(searchFlags.threshold, cfg.SimilarityThreshold)),
		}
		if searchFlags.category != "" {
			opts = append(opts, store.WithCategory(searchFlags.category))
		}

		chunks, err := st.Search(ctx, vector, opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(chunks) == 0 {
			fmt.Fprintln(out, "no matches")
			return nil
		}
		for i, c := range chunks {
			fmt.Fprintf(out, "%2d. %s  [%s, %s]  similarity=%.4f\n", i+1, c.Title, c.Category, c.Source, c.Similarity)
		}
		return nil
	},
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orDefaultF(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func init() {
	searchCmd.Flags().IntVar(&searchFlags.topK, "top-k", 0, "maximum results (default from config)")
	searchCmd.Flags().Float64Var(&searchFlags.threshold, "threshold", 0, "similarity floor (default from config)")
	searchCmd.Flags().StringVar(&searchFlags.category, "category", "", "restrict results to one category")
	rootCmd.AddCommand(searchCmd)
}
