package server

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"partychat/internal/model"
)

type joinRequest struct {
	client *Client
	room   string
}

type roomFrame struct {
	room  string
	frame []byte
}

type userFrame struct {
	userID string
	frame  []byte
}

type inbound struct {
	client *Client
	frame  []byte
}

// Hub routes frames between connected clients. The run loop is the only
// goroutine that touches the maps, so no locking is needed: everything goes
// through the channels.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	toRoom     chan roomFrame
	toUser     chan userFrame
	inbound    chan inbound

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	byUser  map[string]map[*Client]bool

	store *Store
	log   zerolog.Logger
}

func NewHub(store *Store, log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		toRoom:     make(chan roomFrame, 64),
		toUser:     make(chan userFrame, 64),
		inbound:    make(chan inbound, 256),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		store:      store,
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if h.byUser[client.userID] == nil {
				h.byUser[client.userID] = make(map[*Client]bool)
			}
			h.byUser[client.userID][client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				delete(h.byUser[client.userID], client)
				for _, room := range h.rooms {
					delete(room, client)
				}
				close(client.send)
			}

		case req := <-h.join:
			// Room membership is additive and idempotent; joining B never
			// drops A, so several conversations stay warm at once.
			if h.rooms[req.room] == nil {
				h.rooms[req.room] = make(map[*Client]bool)
			}
			h.rooms[req.room][req.client] = true

		case rf := <-h.toRoom:
			for client := range h.rooms[rf.room] {
				h.deliver(client, rf.frame)
			}

		case uf := <-h.toUser:
			for client := range h.byUser[uf.userID] {
				h.deliver(client, uf.frame)
			}

		case in := <-h.inbound:
			h.handleEvent(in.client, in.frame)
		}
	}
}

func (h *Hub) deliver(client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
		close(client.send)
		delete(h.clients, client)
		delete(h.byUser[client.userID], client)
		for _, room := range h.rooms {
			delete(room, client)
		}
	}
}

func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{Event: event, Data: data})
}

// BroadcastRoom fans an event out to every connection joined to the room.
func (h *Hub) BroadcastRoom(room, event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return
	}
	h.toRoom <- roomFrame{room: room, frame: frame}
}

// SendToUser fans an event out to every connection of one identity.
func (h *Hub) SendToUser(userID, event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode direct")
		return
	}
	h.toUser <- userFrame{userID: userID, frame: frame}
}

// handleEvent processes one inbound client frame.
func (h *Hub) handleEvent(client *Client, frame []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		h.log.Warn().Err(err).Str("user", client.userID).Msg("malformed client frame")
		return
	}

	switch env.Event {
	case model.EventConversationJoin:
		var p model.JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		a, b, ok := h.store.participants(p.ConversationID)
		if !ok || (client.userID != a && client.userID != b) {
			return
		}
		if h.rooms[p.ConversationID] == nil {
			h.rooms[p.ConversationID] = make(map[*Client]bool)
		}
		h.rooms[p.ConversationID][client] = true

	case model.EventConversationRead:
		var p model.ReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		h.store.MarkRead(p.ConversationID, client.userID)

	case model.EventMessageSend:
		// Notification relay: the message was already persisted over REST,
		// this just gets it to the room without a refetch.
		var p model.SendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		if p.Message.SenderID != client.userID {
			h.log.Warn().Str("user", client.userID).Msg("dropping spoofed message:send")
			return
		}
		frame, err := encodeEvent(model.EventMessageNew, model.NewMessagePayload{
			Message: p.Message,
			TempID:  p.TempID,
		})
		if err != nil {
			return
		}
		for c := range h.rooms[p.ConversationID] {
			h.deliver(c, frame)
		}

	default:
		h.log.Debug().Str("event", env.Event).Msg("ignoring unknown client event")
	}
}
