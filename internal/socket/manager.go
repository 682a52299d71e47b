package socket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrNoIdentity = errors.New("socket: identity not known yet")

// Manager keeps at most one live connection per identity. Connect is
// idempotent: while a connection for the identity is alive, the same *Conn
// comes back instead of a second dial. Teardown goes through Disconnect (or
// logout), never by letting connections leak.
type Manager struct {
	url string
	log zerolog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewManager(wsURL string, log zerolog.Logger) *Manager {
	return &Manager{
		url:   wsURL,
		log:   log,
		conns: make(map[string]*Conn),
	}
}

// Connect dials the channel for identity, authenticating with token. An empty
// identity means the auth flow has not finished; no connection is attempted.
func (m *Manager) Connect(ctx context.Context, identity, token string) (*Conn, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[identity]; ok && !c.Closed() {
		return c, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, header)
	if err != nil {
		return nil, err
	}

	c := newConn(identity, ws, m.log.With().Str("identity", identity).Logger())
	m.conns[identity] = c
	m.log.Debug().Str("identity", identity).Msg("channel connected")
	return c, nil
}

// Disconnect closes and forgets the identity's connection, releasing all room
// memberships and listeners. A later Connect builds a fresh connection.
func (m *Manager) Disconnect(identity string) {
	m.mu.Lock()
	c, ok := m.conns[identity]
	delete(m.conns, identity)
	m.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Shutdown closes every connection. Used at process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*Conn)
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
