package chat

import (
	"context"
	"encoding/json"

	"partychat/internal/socket"
)

// channelConn adapts *socket.Conn to the Channel interface.
type channelConn struct {
	*socket.Conn
}

func (c channelConn) On(event string, h func(data json.RawMessage)) Subscription {
	return c.Conn.On(event, socket.Handler(h))
}

// DialWith builds a DialFunc over the socket manager for one identity/token
// pair. Connect is idempotent in the manager, so redialing while the previous
// connection is alive reuses it.
func DialWith(m *socket.Manager, identity, token string) DialFunc {
	return func(ctx context.Context) (Channel, error) {
		conn, err := m.Connect(ctx, identity, token)
		if err != nil {
			return nil, err
		}
		return channelConn{conn}, nil
	}
}
