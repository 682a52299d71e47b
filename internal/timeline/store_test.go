package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id, conv string, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       "alice",
		Content:        "content of " + id,
		Type:           model.TypeText,
		CreatedAt:      at,
		Status:         model.StatusSent,
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestAppendIsIdempotent(t *testing.T) {
	s := NewStore()
	m := msg("srv-1", "c1", base)

	s.Append("c1", m)
	s.Append("c1", m)

	assert.Equal(t, []string{"srv-1"}, ids(s.Timeline("c1")))
}

func TestAppendSortsByCreatedAt(t *testing.T) {
	s := NewStore()
	s.Append("c1", msg("srv-3", "c1", base.Add(3*time.Second)))
	s.Append("c1", msg("srv-1", "c1", base.Add(1*time.Second)))
	s.Append("c1", msg("srv-2", "c1", base.Add(2*time.Second)))

	assert.Equal(t, []string{"srv-1", "srv-2", "srv-3"}, ids(s.Timeline("c1")))
}

func TestEqualTimestampsKeepInsertionOrder(t *testing.T) {
	s := NewStore()
	s.Append("c1", msg("srv-a", "c1", base))
	s.Append("c1", msg("srv-b", "c1", base))
	s.Append("c1", msg("srv-c", "c1", base))

	assert.Equal(t, []string{"srv-a", "srv-b", "srv-c"}, ids(s.Timeline("c1")))
}

func TestReplaceSwapsPlaceholderForServerMessage(t *testing.T) {
	s := NewStore()
	local := msg("local-X", "c1", base)
	local.Status = model.StatusSending
	s.Append("c1", local)

	s.Replace("c1", "local-X", msg("srv-1", "c1", base.Add(time.Second)))

	tl := s.Timeline("c1")
	require.Len(t, tl, 1)
	assert.Equal(t, "srv-1", tl[0].ID)
	assert.Equal(t, model.StatusSent, tl[0].Status)
	for _, m := range tl {
		assert.NotEqual(t, "local-X", m.ID)
	}
}

func TestReplaceWithoutPlaceholderDegradesToAppend(t *testing.T) {
	s := NewStore()

	s.Replace("c1", "local-gone", msg("srv-1", "c1", base))
	s.Replace("c1", "local-gone", msg("srv-1", "c1", base))

	assert.Equal(t, []string{"srv-1"}, ids(s.Timeline("c1")))
}

func TestReplaceWhenServerMessageAlreadyArrived(t *testing.T) {
	// Socket echo raced ahead of the REST reply: the confirmed message is
	// already in the timeline when Replace runs. The placeholder must go and
	// the confirmed message must not duplicate.
	s := NewStore()
	local := msg("local-X", "c1", base)
	local.Status = model.StatusSending
	s.Append("c1", local)
	s.Append("c1", msg("srv-1", "c1", base.Add(time.Second)))

	s.Replace("c1", "local-X", msg("srv-1", "c1", base.Add(time.Second)))

	assert.Equal(t, []string{"srv-1"}, ids(s.Timeline("c1")))
}

func TestSetHistoryKeepsPendingLocalMessages(t *testing.T) {
	s := NewStore()
	local := msg("local-X", "c1", base.Add(5*time.Second))
	local.Status = model.StatusSending
	s.Append("c1", local)

	s.SetHistory("c1", []model.Message{
		msg("srv-1", "c1", base.Add(1*time.Second)),
		msg("srv-2", "c1", base.Add(2*time.Second)),
	})

	assert.Equal(t, []string{"srv-1", "srv-2", "local-X"}, ids(s.Timeline("c1")))
}

func TestHistoryAfterSocketEventDoesNotDuplicate(t *testing.T) {
	// The live event for srv-2 lands before the history fetch returns a page
	// that also contains srv-2.
	s := NewStore()
	s.Append("c1", msg("srv-2", "c1", base.Add(2*time.Second)))

	s.SetHistory("c1", []model.Message{
		msg("srv-1", "c1", base.Add(1*time.Second)),
		msg("srv-2", "c1", base.Add(2*time.Second)),
	})

	assert.Equal(t, []string{"srv-1", "srv-2"}, ids(s.Timeline("c1")))
}

func TestMergeIsOrderIndependent(t *testing.T) {
	history := []model.Message{
		msg("srv-1", "c1", base.Add(1*time.Second)),
		msg("srv-2", "c1", base.Add(2*time.Second)),
	}
	live := msg("srv-3", "c1", base.Add(3*time.Second))

	first := NewStore()
	first.SetHistory("c1", history)
	first.Append("c1", live)

	second := NewStore()
	second.Append("c1", live)
	second.SetHistory("c1", history)

	assert.Equal(t, first.Timeline("c1"), second.Timeline("c1"))
}

func TestConversationsAreIsolated(t *testing.T) {
	s := NewStore()
	s.Append("c1", msg("srv-1", "c1", base))

	s.Append("c2", msg("srv-2", "c2", base))

	assert.Equal(t, []string{"srv-1"}, ids(s.Timeline("c1")))
	assert.Equal(t, []string{"srv-2"}, ids(s.Timeline("c2")))
}

func TestSetStatusMarksFailure(t *testing.T) {
	s := NewStore()
	local := msg("local-X", "c1", base)
	local.Status = model.StatusSending
	s.Append("c1", local)

	s.SetStatus("c1", "local-X", model.StatusFailed)
	s.SetStatus("c1", "unknown", model.StatusFailed) // ignored

	tl := s.Timeline("c1")
	require.Len(t, tl, 1)
	assert.Equal(t, model.StatusFailed, tl[0].Status)
}

func TestMarkReadOnlyTouchesConfirmedMessages(t *testing.T) {
	s := NewStore()
	pending := msg("local-X", "c1", base.Add(2*time.Second))
	pending.Status = model.StatusSending
	s.Append("c1", msg("srv-1", "c1", base))
	s.Append("c1", pending)

	s.MarkRead("c1")

	tl := s.Timeline("c1")
	require.Len(t, tl, 2)
	assert.Equal(t, model.StatusRead, tl[0].Status)
	assert.Equal(t, model.StatusSending, tl[1].Status)
	assert.Equal(t, "content of srv-1", tl[0].Content)
}

func TestHydrated(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Hydrated("c1"))

	s.SetHistory("c1", nil)
	assert.True(t, s.Hydrated("c1"))
	assert.False(t, s.Hydrated("c2"))
}
