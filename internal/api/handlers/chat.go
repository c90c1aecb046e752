package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/ar10000/sitechat/internal/api"
	"github.com/ar10000/sitechat/internal/domain"
	"github.com/ar10000/sitechat/internal/gateway"
)

// AssistantQueryService is the front-door orchestration consumed by the
// HTTP layer.
type AssistantQueryService interface {
	AskStream(ctx context.Context, query string) (<-chan gateway.Fragment, error)
	Ask(ctx context.Context, message string) (string, error)
}

type ChatHandler struct {
	svc AssistantQueryService
}

func NewChatHandler(svc AssistantQueryService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Query string `json:"query"`
}

type VoiceChatRequest struct {
	Message string `json:"message"`
}

type VoiceChatResponse struct {
	Response string `json:"response"`
}

// Chat streams the assistant's answer as a plain-text body, flushed
// fragment by fragment. Errors before the first byte are structured JSON;
// once streaming has begun, partial output plus an inline marker is all
// the transport can offer.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid request body")
		return
	}

	fragments, err := h.svc.AskStream(r.Context(), req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for fragment := range fragments {
		if _, err := w.Write([]byte(fragment.Text)); err != nil {
			// Client disconnected; the request context cancellation tears
			// down the upstream stream.
			log.Printf("chat: client write failed: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// VoiceChat answers in a single JSON payload for the short-form voice path.
func (h *ChatHandler) VoiceChat(w http.ResponseWriter, r *http.Request) {
	var req VoiceChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid request body")
		return
	}

	answer, err := h.svc.Ask(r.Context(), req.Message)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, VoiceChatResponse{Response: answer})
}
