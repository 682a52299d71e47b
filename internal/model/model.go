package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the variant of a message. Consumers switch on it instead of
// probing optional fields.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// MessageStatus tracks the delivery state of a message. Server-confirmed
// messages arrive as "sent"; the other states are client-side transitions.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

const localIDPrefix = "local-"

// NewLocalID returns a placeholder id for an optimistic message. The prefix
// makes placeholders recognizable until the server assigns the real id.
func NewLocalID() string {
	return localIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id is a client-side placeholder id.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	FileName       string        `json:"file_name,omitempty"`
	FileSize       int64         `json:"file_size,omitempty"`
	FileURL        string        `json:"file_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         MessageStatus `json:"status,omitempty"`
}

// Confirmed reports whether the message carries a server-assigned id.
func (m Message) Confirmed() bool {
	return m.ID != "" && !IsLocalID(m.ID)
}

type Conversation struct {
	ID                 string    `json:"id"`
	ParticipantA       string    `json:"participant_a"`
	ParticipantB       string    `json:"participant_b"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	UnreadCount        int       `json:"unread_count"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Partner returns the participant that is not self. The core never assumes
// which side is "self"; callers decide at use time.
func (c Conversation) Partner(self string) string {
	if c.ParticipantA == self {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// FileMeta is what the upload endpoint returns for an attachment.
type FileMeta struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}
