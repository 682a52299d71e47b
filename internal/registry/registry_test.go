package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func conv(id string, unread int) model.Conversation {
	return model.Conversation{
		ID:           id,
		ParticipantA: "alice",
		ParticipantB: "bob",
		UnreadCount:  unread,
		UpdatedAt:    base,
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	r := New()
	r.Upsert(conv("c1", 0))
	r.Upsert(conv("c2", 1))

	updated := conv("c1", 3)
	updated.LastMessagePreview = "hi"
	r.Upsert(updated)

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, 3, got.UnreadCount)
	assert.Equal(t, "hi", got.LastMessagePreview)
	assert.Len(t, r.List(), 2)
}

func TestTouchDoesNotClobberUnread(t *testing.T) {
	r := New()
	r.Upsert(conv("c1", 4))

	r.Touch("c1", "new preview", base.Add(time.Minute))

	got, _ := r.Get("c1")
	assert.Equal(t, 4, got.UnreadCount)
	assert.Equal(t, "new preview", got.LastMessagePreview)
	assert.Equal(t, base.Add(time.Minute), got.UpdatedAt)
}

func TestTouchIgnoresStaleTimestamps(t *testing.T) {
	r := New()
	r.Upsert(conv("c1", 0))

	r.Touch("c1", "old", base.Add(-time.Minute))

	got, _ := r.Get("c1")
	assert.Equal(t, base, got.UpdatedAt)
	assert.Equal(t, "old", got.LastMessagePreview)
}

func TestTouchCreatesUnknownConversation(t *testing.T) {
	r := New()
	r.Touch("c9", "hello", base)

	got, ok := r.Get("c9")
	require.True(t, ok)
	assert.Equal(t, "hello", got.LastMessagePreview)
}

func TestUnreadAccounting(t *testing.T) {
	r := New()
	r.Upsert(conv("c1", 0))

	for i := 0; i < 3; i++ {
		r.IncrementUnread("c1")
	}
	got, _ := r.Get("c1")
	assert.Equal(t, 3, got.UnreadCount)

	r.ResetUnread("c1")
	got, _ = r.Get("c1")
	assert.Equal(t, 0, got.UnreadCount)
}

func TestUnreadIsPerConversation(t *testing.T) {
	r := New()
	r.Upsert(conv("c1", 0))
	r.Upsert(conv("c2", 0))

	r.IncrementUnread("c1")

	c2, _ := r.Get("c2")
	assert.Equal(t, 0, c2.UnreadCount)
}

func TestSelect(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.Active())

	r.Select("c1")
	assert.Equal(t, "c1", r.Active())

	r.Select("")
	assert.Equal(t, "", r.Active())
}

func TestListKeepsFirstSeenOrder(t *testing.T) {
	r := New()
	r.Upsert(conv("c2", 0))
	r.Upsert(conv("c1", 0))
	r.Upsert(conv("c2", 5)) // update must not reorder

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
	assert.Equal(t, "c1", list[1].ID)
}
