// Package timeline owns the reconciled per-conversation message sequence.
//
// Three sources race to deliver messages: REST history fetches, optimistic
// local sends, and inbound channel events. The store merges them by message id
// and sorts by creation time at read, so the same message arriving from two
// sources, or sources arriving in any order, always produces the same timeline.
package timeline

import (
	"sort"
	"sync"

	"partychat/internal/model"
)

type entry struct {
	msg model.Message
	seq uint64 // insertion order, breaks CreatedAt ties in the stable sort
}

type conversation struct {
	entries []entry
	byID    map[string]int // message id -> index into entries
}

// Store holds one reconciled timeline per conversation. All methods are safe
// for concurrent use; every mutation is idempotent by message id so callers
// never need to coordinate ordering between async completions.
type Store struct {
	mu      sync.Mutex
	convos  map[string]*conversation
	nextSeq uint64
}

func NewStore() *Store {
	return &Store{convos: make(map[string]*conversation)}
}

func (s *Store) conv(convID string) *conversation {
	c, ok := s.convos[convID]
	if !ok {
		c = &conversation{byID: make(map[string]int)}
		s.convos[convID] = c
	}
	return c
}

func (s *Store) insert(c *conversation, msg model.Message) {
	c.byID[msg.ID] = len(c.entries)
	c.entries = append(c.entries, entry{msg: msg, seq: s.nextSeq})
	s.nextSeq++
}

// SetHistory merges a freshly fetched server page into the conversation.
// The merge is additive: ids already present are refreshed in place, new ids
// are inserted, and nothing is dropped — in particular a locally-pending
// optimistic message with no server twin yet survives the merge.
func (s *Store) SetHistory(convID string, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(convID)
	for _, msg := range msgs {
		if msg.Status == "" {
			msg.Status = model.StatusSent
		}
		if i, ok := c.byID[msg.ID]; ok {
			seq := c.entries[i].seq
			c.entries[i] = entry{msg: msg, seq: seq}
			continue
		}
		s.insert(c, msg)
	}
}

// Append adds one message at its conversation. Appending an id that is already
// present is a no-op; both a socket event and a refresh can race to deliver
// the same confirmed message.
func (s *Store) Append(convID string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(convID)
	if _, ok := c.byID[msg.ID]; ok {
		return
	}
	if msg.Status == "" {
		msg.Status = model.StatusSent
	}
	s.insert(c, msg)
}

// Replace removes the placeholder with localID and inserts serverMsg. If the
// placeholder is already gone (a concurrent refresh purged it) this degrades
// to a plain idempotent append of serverMsg.
func (s *Store) Replace(convID, localID string, serverMsg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(convID)
	if serverMsg.Status == "" {
		serverMsg.Status = model.StatusSent
	}

	i, hadLocal := c.byID[localID]
	if j, ok := c.byID[serverMsg.ID]; ok {
		// Server message already arrived (socket echo beat the REST reply).
		// Refresh it and drop the placeholder if it still exists.
		seq := c.entries[j].seq
		c.entries[j] = entry{msg: serverMsg, seq: seq}
		if hadLocal {
			s.remove(c, i)
		}
		return
	}
	if !hadLocal {
		s.insert(c, serverMsg)
		return
	}
	delete(c.byID, localID)
	c.entries[i] = entry{msg: serverMsg, seq: c.entries[i].seq}
	c.byID[serverMsg.ID] = i
}

func (s *Store) remove(c *conversation, i int) {
	delete(c.byID, c.entries[i].msg.ID)
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	for k := i; k < len(c.entries); k++ {
		c.byID[c.entries[k].msg.ID] = k
	}
}

// SetStatus updates the status of one message, typically sending -> failed
// when a REST send is rejected. Unknown ids are ignored.
func (s *Store) SetStatus(convID, id string, status model.MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conv(convID)
	if i, ok := c.byID[id]; ok {
		c.entries[i].msg.Status = status
	}
}

// MarkRead transitions the conversation's confirmed messages to read. Message
// content is untouched; placeholders still in flight keep their status.
func (s *Store) MarkRead(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convos[convID]
	if !ok {
		return
	}
	for i := range c.entries {
		m := &c.entries[i].msg
		if m.Confirmed() && (m.Status == model.StatusSent || m.Status == model.StatusDelivered) {
			m.Status = model.StatusRead
		}
	}
}

// Hydrated reports whether the conversation has ever been loaded or written.
// Non-active conversations are hydrated lazily on first selection.
func (s *Store) Hydrated(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convos[convID]
	return ok
}

// Timeline returns the reconciled sequence sorted ascending by CreatedAt.
// Ties keep insertion order; the timestamp source does not guarantee
// sub-millisecond resolution.
func (s *Store) Timeline(convID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convos[convID]
	if !ok {
		return nil
	}
	sorted := make([]entry, len(c.entries))
	copy(sorted, c.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].msg.CreatedAt.Equal(sorted[j].msg.CreatedAt) {
			return sorted[i].seq < sorted[j].seq
		}
		return sorted[i].msg.CreatedAt.Before(sorted[j].msg.CreatedAt)
	})
	out := make([]model.Message, len(sorted))
	for i, e := range sorted {
		out[i] = e.msg
	}
	return out
}
