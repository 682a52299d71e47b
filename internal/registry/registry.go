// Package registry holds the merged list of conversations for the current
// identity plus the active-conversation pointer. It is a pure data holder;
// side effects of selection (room join, read marking) live in the
// orchestrator.
package registry

import (
	"sync"
	"time"

	"partychat/internal/model"
)

type Registry struct {
	mu     sync.Mutex
	byID   map[string]model.Conversation
	order  []string // insertion order of first sight, keeps List stable
	active string
}

func New() *Registry {
	return &Registry{byID: make(map[string]model.Conversation)}
}

// Upsert inserts or replaces a conversation by id. This is the authoritative
// path used for server-fetched summaries; the server's unread count wins.
func (r *Registry) Upsert(conv model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[conv.ID]; !ok {
		r.order = append(r.order, conv.ID)
	}
	r.byID[conv.ID] = conv
}

// Touch updates the preview and UpdatedAt from a live event. Live events carry
// partial payloads, so the unread count is deliberately left alone here;
// unread accounting goes through IncrementUnread/ResetUnread.
func (r *Registry) Touch(convID, preview string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.byID[convID]
	if !ok {
		conv = model.Conversation{ID: convID}
		r.order = append(r.order, convID)
	}
	conv.LastMessagePreview = preview
	if at.After(conv.UpdatedAt) {
		conv.UpdatedAt = at
	}
	r.byID[convID] = conv
}

// IncrementUnread bumps the unread counter by one. Called for each inbound
// message while the conversation is not the active one.
func (r *Registry) IncrementUnread(convID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.byID[convID]; ok {
		conv.UnreadCount++
		r.byID[convID] = conv
	}
}

// ResetUnread zeroes the unread counter. Called once read marking succeeded
// for the newly selected conversation.
func (r *Registry) ResetUnread(convID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.byID[convID]; ok {
		conv.UnreadCount = 0
		r.byID[convID] = conv
	}
}

// Select moves the active-conversation pointer. Empty string deselects.
func (r *Registry) Select(convID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = convID
}

// Active returns the currently selected conversation id, or "".
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registry) Get(convID string) (model.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[convID]
	return conv, ok
}

// List returns all known conversations in first-seen order. Presentation
// ordering (most recently updated first, etc.) is the UI's business.
func (r *Registry) List() []model.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Conversation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
