package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/grimoire-ai/grimoire/internal/chat"
	"github.com/grimoire-ai/grimoire/internal/log"
)

// ChatRequest is the POST /api/chat body.
type ChatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []chat.Message `json:"conversationHistory,omitempty"`
}

// SSETokenData is the payload of "token" events.
type SSETokenData struct {
	Text string `json:"text"`
}

// SSEErrorData is the payload of "error" events.
type SSEErrorData struct {
	Message string `json:"message"`
}

// ChatStreamer starts one chat request and returns its event stream.
// *chat.Service satisfies it.
type ChatStreamer interface {
	Chat(ctx context.Context, req chat.Request) <-chan chat.Event
}

// ChatHandler streams chat answers over Server-Sent Events.
type ChatHandler struct {
	service ChatStreamer
	logger  log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(service ChatStreamer, logger log.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// handleChat validates the request and relays the service's event stream
// as SSE. Event types mirror the stream contract:
//
//	sources: [{"title": ..., "category": ..., "source": ..., "similarity": ...}]
//	token:   {"text": "..."}
//	done:    {}
//	error:   {"message": "..."}
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err), h.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "MISSING_MESSAGE", "message is required", h.logger)
		return
	}
	for i, m := range req.ConversationHistory {
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			writeError(w, http.StatusBadRequest, "INVALID_HISTORY",
				fmt.Sprintf("history[%d]: role must be user or assistant", i), h.logger)
			return
		}
		if m.Content == "" {
			writeError(w, http.StatusBadRequest, "INVALID_HISTORY",
				fmt.Sprintf("history[%d]: content is required", i), h.logger)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	h.logger.Info("chat stream started", "message_len", len(req.Message))

	events := h.service.Chat(ctx, chat.Request{
		Message: req.Message,
		History: req.ConversationHistory,
	})

	for ev := range events {
		switch ev := ev.(type) {
		case chat.Sources:
			writeSSE(w, flusher, "sources", ev.Sources)
		case chat.Token:
			writeSSE(w, flusher, "token", SSETokenData{Text: ev.Text})
		case chat.Done:
			writeSSE(w, flusher, "done", struct{}{})
		case chat.Error:
			writeSSE(w, flusher, "error", SSEErrorData{Message: ev.Message})
		}
	}

	h.logger.Info("chat stream finished")
}

// writeSSE writes one SSE frame and flushes it immediately.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
