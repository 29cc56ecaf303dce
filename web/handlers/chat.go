package handlers

import (
	"net/http"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/events"
	"github.com/scrypster/loreline/pkg/types"
)

// ChatHandlers drives the in-memory transcript over HTTP. It stands in for
// the host chat application: appending a message publishes the same bus
// event the host would emit, which is what the trigger engine listens for.
type ChatHandlers struct {
	transcript *chat.MemoryTranscript
	bus        *events.Bus
}

// NewChatHandlers creates handlers over the transcript and event bus.
func NewChatHandlers(transcript *chat.MemoryTranscript, bus *events.Bus) *ChatHandlers {
	return &ChatHandlers{transcript: transcript, bus: bus}
}

// PostMessage handles POST /api/chats/{id}/messages: append a floor and
// publish the matching message event.
func (h *ChatHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req types.Floor
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	chatID := r.PathValue("id")
	index := h.transcript.Append(chatID, req)

	kind := events.MessageReceived
	if req.IsUser {
		kind = events.MessageSent
	}
	h.bus.Publish(events.Event{Kind: kind, Index: index, ChatID: chatID})

	respondJSON(w, http.StatusCreated, map[string]int{"index": index})
}

// Activate handles POST /api/chats/{id}/activate: switch the active
// conversation and publish the chat-changed event.
func (h *ChatHandlers) Activate(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	h.transcript.SetActive(chatID)
	h.bus.Publish(events.Event{Kind: events.ChatChanged, ChatID: chatID})
	respondJSON(w, http.StatusOK, map[string]string{"active": chatID})
}

// GetTranscript handles GET /api/chats/{id}: the conversation's floors.
func (h *ChatHandlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	length := h.transcript.Length(chatID)
	floors := make([]types.Floor, 0, length)
	for i := 1; i <= length; i++ {
		if floor, ok := h.transcript.Floor(chatID, i); ok {
			floors = append(floors, floor)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chat_id": chatID,
		"length":  length,
		"floors":  floors,
	})
}
