package model

// Channel event names. Outbound events are emitted by the client, inbound
// events are pushed by the server.
const (
	EventConversationJoin    = "conversation:join"
	EventConversationRead    = "conversation:read"
	EventMessageSend         = "message:send"
	EventMessageNew          = "message:new"
	EventConversationUpdated = "conversation:updated"
)

type JoinPayload struct {
	ConversationID string `json:"conversation_id"`
}

type ReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

// SendPayload carries a server-confirmed message over the channel so peers can
// append it without a fetch. TempID lets the sender's own echoes (other tabs,
// devices) correlate the broadcast with their optimistic placeholder.
type SendPayload struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
	TempID         string  `json:"temp_id,omitempty"`
}

type NewMessagePayload struct {
	Message Message `json:"message"`
	TempID  string  `json:"temp_id,omitempty"`
}

type ConversationUpdatedPayload struct {
	ConversationID string `json:"conversation_id"`
	LastMessage    string `json:"last_message"`
}
