// Package embedding turns chunk text into fixed-dimension vectors via an
// Azure OpenAI deployment. Batches are retried indefinitely on rate
// limiting and a bounded number of times on server errors; any other
// failure propagates immediately.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/grimoire-ai/grimoire/internal/log"
)

// embeddingAPI is the slice of the provider client this package uses.
// openai.Client.Embeddings satisfies it.
type embeddingAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// Config carries the provider settings for one client.
type Config struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Deployment string
	Dimensions int

	// RetryWait is the fixed pause between retry attempts.
	RetryWait time.Duration
	// MaxServerRetries bounds retries on server-side failures. Rate
	// limits are never bounded.
	MaxServerRetries int
	// BatchDelay throttles consecutive batch requests.
	BatchDelay time.Duration
}

// Client embeds batches of texts and single queries. Safe for concurrent
// use.
type Client struct {
	api              embeddingAPI
	deployment       string
	dimensions       int
	retryWait        time.Duration
	maxServerRetries int
	limiter          *rate.Limiter
	logger           log.Logger
}

// NewClient builds a client against an Azure OpenAI endpoint.
func NewClient(cfg Config, logger log.Logger) *Client {
	api := openai.NewClient(
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	)
	return newClient(&api.Embeddings, cfg, logger)
}

func newClient(api embeddingAPI, cfg Config, logger log.Logger) *Client {
	limit := rate.Inf
	if cfg.BatchDelay > 0 {
		limit = rate.Every(cfg.BatchDelay)
	}
	return &Client{
		api:              api,
		deployment:       cfg.Deployment,
		dimensions:       cfg.Dimensions,
		retryWait:        cfg.RetryWait,
		maxServerRetries: cfg.MaxServerRetries,
		limiter:          rate.NewLimiter(limit, 1),
		logger:           logger,
	}
}

// EmbedBatch returns one vector per input text, in input order. The
// provider may answer out of order; responses are re-sorted by their
// reported input index before vectors are returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(c.deployment),
		Dimensions: openai.Int(int64(c.dimensions)),
	}

	serverRetries := 0
	for {
		resp, err := c.api.New(ctx, params)
		if err == nil {
			return vectorsInInputOrder(resp, len(texts))
		}

		switch {
		case isRateLimited(err):
			c.logger.Warn("rate limited, retrying batch", "wait", c.retryWait)
		case isServerError(err):
			serverRetries++
			if serverRetries > c.maxServerRetries {
				return nil, fmt.Errorf("embedding batch failed after %d server retries: %w", c.maxServerRetries, err)
			}
			c.logger.Warn("server error, retrying batch",
				"attempt", serverRetries, "max", c.maxServerRetries, "wait", c.retryWait)
		default:
			return nil, fmt.Errorf("embedding batch: %w", err)
		}

		if err := sleep(ctx, c.retryWait); err != nil {
			return nil, err
		}
	}
}

// EmbedQuery embeds a single text as a one-element batch.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

func vectorsInInputOrder(resp *openai.CreateEmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(resp.Data))
	}

	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, e := range data {
		if e.Index != int64(i) {
			return nil, fmt.Errorf("embedding response missing input index %d", i)
		}
		vec := make([]float32, len(e.Embedding))
		for j, v := range e.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

func isServerError(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
