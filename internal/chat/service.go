package chat

import (
	"context"

	"github.com/grimoire-ai/grimoire/internal/log"
	"github.com/grimoire-ai/grimoire/internal/store"
)

// Fixed user-facing failure messages. The underlying errors are logged,
// never streamed to the caller.
const (
	embeddingErrorMessage  = "Embedding API error"
	searchErrorMessage     = "Vector search error"
	completionErrorMessage = "Chat completion error"
	genericErrorMessage    = "An unexpected error occurred"
)

// Embedder turns the user's question into a query vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever serves nearest-chunk queries. *store.Store satisfies it.
type Retriever interface {
	Search(ctx context.Context, vector []float32, opts ...store.SearchOption) ([]store.RetrievedChunk, error)
}

// Request is one chat invocation: the current question plus the caller's
// conversation history in original order.
type Request struct {
	Message string
	History []Message

	// TopK, Threshold and Category override the retrieval defaults
	// when set.
	TopK      int
	Threshold float64
	Category  string
}

// Service runs retrieval-augmented chat requests. Requests are
// independent; the service is safe for concurrent use.
type Service struct {
	embedder  Embedder
	retriever Retriever
	completer Completer
	logger    log.Logger

	topK      int
	threshold float64
}

// NewService wires a chat service with its retrieval defaults.
func NewService(embedder Embedder, retriever Retriever, completer Completer, topK int, threshold float64, logger log.Logger) *Service {
	if topK <= 0 {
		topK = store.DefaultTopK
	}
	if threshold <= 0 {
		threshold = store.DefaultSimilarityThreshold
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
		logger:    logger,
		topK:      topK,
		threshold: threshold,
	}
}

// Chat starts one request and returns its event stream. The channel is
// closed after the terminal event, or without one if ctx is cancelled
// first; no event is ever emitted after cancellation.
func (s *Service) Chat(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("chat request panicked", "panic", r)
				emit(ctx, events, Error{Message: genericErrorMessage})
			}
		}()
		s.run(ctx, req, events)
	}()
	return events
}

func (s *Service) run(ctx context.Context, req Request, events chan<- Event) {
	s.logger.Info("processing chat request",
		"message_len", len(req.Message), "history", len(req.History))

	vector, err := s.embedder.EmbedQuery(ctx, req.Message)
	if err != nil {
		s.logger.Error("query embedding failed", "error", err)
		emit(ctx, events, Error{Message: embeddingErrorMessage})
		return
	}

	chunks, err := s.retriever.Search(ctx, vector, s.searchOptions(req)...)
	if err != nil {
		s.logger.Error("vector search failed", "error", err)
		emit(ctx, events, Error{Message: searchErrorMessage})
		return
	}
	if len(chunks) == 0 {
		s.logger.Warn("no relevant chunks found", "message_len", len(req.Message))
	}

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{
			Title:      c.Title,
			Category:   c.Category,
			Source:     c.Source,
			Similarity: c.Similarity,
		}
	}
	if !emit(ctx, events, Sources{Sources: sources}) {
		return
	}

	stream, err := s.completer.Stream(ctx, buildMessages(chunks, req.History, req.Message))
	if err != nil {
		s.logger.Error("starting completion stream failed", "error", err)
		emit(ctx, events, Error{Message: completionErrorMessage})
		return
	}
	defer stream.Close()

	tokens := 0
	for stream.Next() {
		if !emit(ctx, events, Token{Text: stream.Current()}) {
			return
		}
		tokens++
	}
	if err := stream.Err(); err != nil {
		s.logger.Error("completion stream failed", "error", err, "tokens", tokens)
		emit(ctx, events, Error{Message: completionErrorMessage})
		return
	}

	s.logger.Info("chat request completed", "tokens", tokens, "sources", len(sources))
	emit(ctx, events, Done{})
}

func (s *Service) searchOptions(req Request) []store.SearchOption {
	topK := s.topK
	if req.TopK > 0 {
		topK = req.TopK
	}
	threshold := s.threshold
	if req.Threshold > 0 {
		threshold = req.Threshold
	}

	opts := []store.SearchOption{store.WithTopK(topK), store.WithThreshold(threshold)}
	if req.Category != "" {
		opts = append(opts, store.WithCategory(req.Category))
	}
	return opts
}

// emit delivers one event unless the caller has already detached.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}
