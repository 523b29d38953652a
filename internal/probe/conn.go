package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const closeWait = time.Second

// Conn is the slice of *websocket.Conn the probe relies on.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a Conn to a WebSocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	dialer *websocket.Dialer
}

func NewDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return &wsConn{Conn: conn}, nil
}

// wsConn sends a normal-closure close frame before dropping the socket, so the
// peer sees 1000 instead of an abnormal EOF.
type wsConn struct {
	*websocket.Conn
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	// fails with ErrCloseSent when the peer closed first; the socket still has to go
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	return c.Conn.Close()
}
