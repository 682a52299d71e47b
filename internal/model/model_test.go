package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalIDs(t *testing.T) {
	id := NewLocalID()
	assert.True(t, IsLocalID(id))
	assert.NotEqual(t, id, NewLocalID())

	assert.False(t, IsLocalID("srv-123"))
	assert.False(t, IsLocalID(""))
}

func TestConfirmed(t *testing.T) {
	assert.True(t, Message{ID: "abc"}.Confirmed())
	assert.False(t, Message{ID: NewLocalID()}.Confirmed())
	assert.False(t, Message{}.Confirmed())
}

func TestPartner(t *testing.T) {
	conv := Conversation{ParticipantA: "alice", ParticipantB: "bob"}
	assert.Equal(t, "bob", conv.Partner("alice"))
	assert.Equal(t, "alice", conv.Partner("bob"))
	// A viewer that is neither participant sees side A, the conventional
	// "other" slot.
	assert.Equal(t, "alice", conv.Partner("mallory"))
}
