package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/grimoire-ai/grimoire/api"
	"github.com/grimoire-ai/grimoire/db"
	"github.com/grimoire-ai/grimoire/internal/chat"
	"github.com/grimoire-ai/grimoire/internal/config"
	"github.com/grimoire-ai/grimoire/internal/embedding"
	"github.com/grimoire-ai/grimoire/internal/log"
	"github.com/grimoire-ai/grimoire/internal/store"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			return err
		}

		service, pool, err := buildChatService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		addr := serveFlags.addr
		if addr == "" {
			addr = cfg.ListenAddr
		}

		server := api.NewServer(pool, service, logger)
		return server.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildChatService wires the embedding client, vector store and
// completion client into a chat service. The caller owns the returned
// pool.
func buildChatService(ctx context.Context, cfg *config.Config, logger log.Logger) (*chat.Service, *pgxpool.Pool, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateEmbedding(); err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateChat(); err != nil {
		return nil, nil, err
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	embedder := embedding.NewClient(embedding.Config{
		Endpoint:         cfg.AzureOpenAIEndpoint,
		APIKey:           cfg.AzureOpenAIAPIKey,
		APIVersion:       cfg.AzureOpenAIAPIVersion,
		Deployment:       cfg.EmbeddingDeploymentName,
		Dimensions:       cfg.EmbeddingDimensions,
		RetryWait:        cfg.RetryWait,
		MaxServerRetries: cfg.MaxServerRetries,
	}, logger)

	completer := chat.NewCompletionClient(chat.CompletionConfig{
		Endpoint:   cfg.AzureOpenAIEndpoint,
		APIKey:     cfg.AzureOpenAIAPIKey,
		APIVersion: cfg.AzureOpenAIAPIVersion,
		Deployment: cfg.ChatDeploymentName,
	})

	service := chat.NewService(embedder, st, completer, cfg.TopK, cfg.SimilarityThreshold, logger)
	return service, pool, nil
}
