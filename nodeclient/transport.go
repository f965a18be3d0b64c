package nodeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// readLimit bounds a single inbound frame. A larger frame fails the read and drops the connection.
const readLimit = 64 << 20

// errNonTextFrame is returned by Read for frames that are not text frames.
// The connection remains usable.
var errNonTextFrame = errors.New("non-text frame")

// Conn is a full-duplex text frame connection to the node.
// Write may be called concurrently with Read, but not with itself.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer establishes a connection to the node at url.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebSocketDialer returns a Dialer that connects over WebSocket using the given HTTP client.
// A nil client uses http.DefaultClient.
func WebSocketDialer(httpClient *http.Client) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("establishing WebSocket conn: %w", err)
		}
		c.SetReadLimit(readLimit)
		return &wsConn{conn: c}, nil
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	typ, b, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, errNonTextFrame
	}
	return b, nil
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
