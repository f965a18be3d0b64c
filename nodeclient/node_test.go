package nodeclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"nhooyr.io/websocket"
)

// wireRequest is a request as seen by the node.
type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      string          `json:"id"`
}

// nodeConn is the node side of a single client connection.
type nodeConn struct {
	conn *websocket.Conn
	// n is the 1-based index of this connection on the node
	n int64
}

func (n *nodeConn) readRequest(ctx context.Context) (wireRequest, error) {
	var req wireRequest
	_, b, err := n.conn.Read(ctx)
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(b, &req)
	return req, err
}

func (n *nodeConn) writeRaw(ctx context.Context, frame string) error {
	return n.conn.Write(ctx, websocket.MessageText, []byte(frame))
}

func (n *nodeConn) reply(ctx context.Context, id string, result any) error {
	b, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"result":  result,
		"id":      id,
	})
	if err != nil {
		return err
	}
	return n.writeRaw(ctx, string(b))
}

func (n *nodeConn) replyError(ctx context.Context, id string, code int, message string) error {
	b, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": code, "message": message},
		"id":      id,
	})
	if err != nil {
		return err
	}
	return n.writeRaw(ctx, string(b))
}

// drain reads and discards frames until the connection is closed, so that close handshakes complete.
func (n *nodeConn) drain(ctx context.Context) {
	for {
		if _, _, err := n.conn.Read(ctx); err != nil {
			return
		}
	}
}

func nodeHandler(serve func(ctx context.Context, n *nodeConn)) http.Handler {
	var conns int64
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		serve(ctx, &nodeConn{conn: conn, n: atomic.AddInt64(&conns, 1)})
	})
}

// startNode starts a simulated node which runs serve for each accepted connection, and returns its WebSocket URL.
func startNode(t *testing.T, serve func(ctx context.Context, n *nodeConn)) string {
	srv := httptest.NewServer(nodeHandler(serve))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startTLSNode is startNode over TLS. The returned server carries the node's certificate.
func startTLSNode(t *testing.T, serve func(ctx context.Context, n *nodeConn)) (string, *httptest.Server) {
	srv := httptest.NewTLSServer(nodeHandler(serve))
	t.Cleanup(srv.Close)
	return "wss" + strings.TrimPrefix(srv.URL, "https"), srv
}

// echoNode replies to every request with its own params as the result.
func echoNode(ctx context.Context, n *nodeConn) {
	for {
		req, err := n.readRequest(ctx)
		if err != nil {
			return
		}
		if err := n.reply(ctx, req.ID, req.Params); err != nil {
			return
		}
	}
}
