package chat

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// TokenStream yields incremental answer fragments. Next reports whether a
// fragment is available; Err must be checked after Next returns false.
type TokenStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Completer starts one streaming completion over the assembled messages.
type Completer interface {
	Stream(ctx context.Context, messages []Message) (TokenStream, error)
}

// completionAPI is the slice of the provider client this package uses.
// openai.Client.Chat.Completions satisfies it.
type completionAPI interface {
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// CompletionClient streams chat completions from an Azure OpenAI
// deployment. Safe for concurrent use.
type CompletionClient struct {
	api        completionAPI
	deployment string
}

// CompletionConfig carries the provider settings for one client.
type CompletionConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Deployment string
}

// NewCompletionClient builds a streaming client against an Azure OpenAI
// endpoint.
func NewCompletionClient(cfg CompletionConfig) *CompletionClient {
	api := openai.NewClient(
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	)
	return &CompletionClient{api: &api.Chat.Completions, deployment: cfg.Deployment}
}

// Stream opens a streaming completion. Provider failures surface through
// the returned stream's Err, not here.
func (c *CompletionClient) Stream(ctx context.Context, messages []Message) (TokenStream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.deployment),
		Messages: toParamMessages(messages),
	}
	return &completionStream{stream: c.api.NewStreaming(ctx, params)}, nil
}

func toParamMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// completionStream adapts the provider SSE stream to TokenStream,
// skipping chunks that carry no text.
type completionStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

func (s *completionStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			s.current = text
			return true
		}
	}
	return false
}

func (s *completionStream) Current() string { return s.current }
func (s *completionStream) Err() error      { return s.stream.Err() }
func (s *completionStream) Close() error    { return s.stream.Close() }
