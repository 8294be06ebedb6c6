package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pliu/securemsg/internal/chat"
	"github.com/pliu/securemsg/internal/middleware"
	"github.com/pliu/securemsg/internal/models"
)

// MessageHandler serves transcripts. Routes must sit behind
// middleware.AuthMiddleware; the caller id always comes from the token.
type MessageHandler struct {
	Chat *chat.Service
}

type transcriptFunc func(ctx context.Context, callerID, peerID int) ([]models.Message, error)

func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.serveTranscript(w, r, "recipientId", h.Chat.History)
}

func (h *MessageHandler) GetSentTo(w http.ResponseWriter, r *http.Request) {
	h.serveTranscript(w, r, "recipientId", h.Chat.SentTo)
}

func (h *MessageHandler) GetReceivedFrom(w http.ResponseWriter, r *http.Request) {
	h.serveTranscript(w, r, "senderId", h.Chat.ReceivedFrom)
}

func (h *MessageHandler) serveTranscript(w http.ResponseWriter, r *http.Request, param string, load transcriptFunc) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rawID := mux.Vars(r)[param]
	peerID, err := strconv.Atoi(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("User id %s not found", rawID), http.StatusNotFound)
		return
	}

	messages, err := load(r.Context(), identity.UserID, peerID)
	if err != nil {
		if chatErr, ok := chat.AsError(err); ok && chatErr.Kind == chat.KindNotFound {
			http.Error(w, chatErr.Message, http.StatusNotFound)
			return
		}
		log.Printf("Error loading messages between %d and %d: %v", identity.UserID, peerID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
