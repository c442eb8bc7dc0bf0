package chat

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/grimoire-ai/grimoire/internal/store"
)

//go:embed prompt.md
var systemPrompt string

// Role identifies the author of one conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// buildMessages assembles the completion request: the persona prompt with
// the retrieved context appended, the caller's history in original order,
// and the current question last.
func buildMessages(chunks []store.RetrievedChunk, history []Message, userMessage string) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{
		Role:    RoleSystem,
		Content: systemPrompt + "\n\n## Retrieved Context\n\n" + formatContext(chunks),
	})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: userMessage})
	return messages
}

// formatContext renders each retrieved chunk as an [Official] block.
func formatContext(chunks []store.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Official] Title: %s\nCategory: %s\nSource: %s\nContent: %s",
			c.Title, c.Category, c.Source, c.Content)
	}
	return strings.Join(blocks, "\n\n")
}
