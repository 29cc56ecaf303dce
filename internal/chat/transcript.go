// Package chat abstracts the host application's conversation history at its
// interface boundary. Loreline only ever reads floors; the host owns the
// messages themselves.
package chat

import (
	"sync"

	"github.com/scrypster/loreline/pkg/types"
)

// Transcript is read access to one conversation's floors. Floors are
// addressed 1-based; implementations must be safe for concurrent use.
type Transcript interface {
	// ActiveChatID returns the id of the conversation currently open in
	// the host, or "" when none is.
	ActiveChatID() string

	// Length returns the number of floors in the given conversation.
	Length(chatID string) int

	// Floor returns the 1-based floor of a conversation. ok is false when
	// the index is out of range.
	Floor(chatID string, index int) (types.Floor, bool)
}

// MemoryTranscript is an in-memory Transcript used by the web binary and
// tests. It also serves as the write side for simulated host traffic.
type MemoryTranscript struct {
	mu     sync.RWMutex
	chats  map[string][]types.Floor
	active string
}

// NewMemoryTranscript creates an empty in-memory transcript store.
func NewMemoryTranscript() *MemoryTranscript {
	return &MemoryTranscript{chats: make(map[string][]types.Floor)}
}

// SetActive switches the active conversation, creating it if needed.
func (t *MemoryTranscript) SetActive(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.chats[chatID]; !ok {
		t.chats[chatID] = nil
	}
	t.active = chatID
}

// Append adds a floor to a conversation and returns its 1-based index.
func (t *MemoryTranscript) Append(chatID string, floor types.Floor) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chats[chatID] = append(t.chats[chatID], floor)
	return len(t.chats[chatID])
}

// ActiveChatID returns the currently active conversation id.
func (t *MemoryTranscript) ActiveChatID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Length returns the number of floors in a conversation.
func (t *MemoryTranscript) Length(chatID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.chats[chatID])
}

// Floor returns the 1-based floor of a conversation.
func (t *MemoryTranscript) Floor(chatID string, index int) (types.Floor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	floors := t.chats[chatID]
	if index < 1 || index > len(floors) {
		return types.Floor{}, false
	}
	return floors[index-1], true
}
