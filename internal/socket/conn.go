// Package socket is the connection manager for the chat channel: one
// long-lived websocket per identity, with named-event subscriptions and
// best-effort outbound emits. The REST path stays authoritative for
// persistence; this channel only buys low latency.
package socket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"partychat/internal/model"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Maximum inbound event size.
	sendBuffer     = 256
)

var ErrClosed = errors.New("socket: connection closed")

// envelope is the wire frame: a named event plus its payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler receives the raw payload of a subscribed event.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler so it can be removed
// exactly. Leaving handlers behind across conversation switches is the classic
// duplicate-message bug; every On must be paired with a Cancel.
type Subscription struct {
	conn  *Conn
	event string
	id    int
}

func (s Subscription) Cancel() {
	if s.conn == nil {
		return
	}
	s.conn.off(s.event, s.id)
}

// Conn is one live channel connection. It owns a read pump and a write pump
// in the usual gorilla arrangement, dialed from the client side.
type Conn struct {
	identity string
	ws       *websocket.Conn
	send     chan []byte
	log      zerolog.Logger

	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextSub  int

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(identity string, ws *websocket.Conn, log zerolog.Logger) *Conn {
	c := &Conn{
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		log:      log,
		handlers: make(map[string]map[int]Handler),
		done:     make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Identity returns the identity this connection was dialed for.
func (c *Conn) Identity() string { return c.identity }

// On subscribes a handler to a named inbound event.
func (c *Conn) On(event string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][id] = h
	return Subscription{conn: c, event: event, id: id}
}

func (c *Conn) off(event string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[event], id)
}

// Emit sends an outbound event. Best effort: a closed connection or a full
// outbound buffer returns an error and the caller moves on — correctness
// comes from the REST path, not from the channel.
func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.send <- frame:
		return nil
	default:
		return errors.New("socket: send buffer full")
	}
}

// JoinRoom asks the server-side fanout to include this connection in
// broadcasts for the conversation. Safe to call repeatedly.
func (c *Conn) JoinRoom(convID string) error {
	return c.Emit(model.EventConversationJoin, model.JoinPayload{ConversationID: convID})
}

// MarkRead tells the server the identity has read up to now in the
// conversation.
func (c *Conn) MarkRead(convID string) error {
	return c.Emit(model.EventConversationRead, model.ReadPayload{ConversationID: convID})
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close tears the connection down, releasing all listeners. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
		c.mu.Lock()
		c.handlers = make(map[string]map[int]Handler)
		c.mu.Unlock()
	})
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("channel read failed")
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed channel frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env envelope) {
	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
