package moqbrowser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketCarrier tunnels one MoQ session inside a single WebSocket
// connection. A message-oriented WebSocket has no native stream
// multiplexing, so every OpenStream call after the first returns the same
// underlying byte pipe: this carrier trades MoQ's per-group stream isolation
// for browser reachability when WebTransport isn't available.
type WebSocketCarrier struct {
	conn *websocket.Conn

	mu     sync.Mutex
	stream *wsStream
}

// NewWebSocketCarrierFromConn wraps an already-established WebSocket
// connection, client- or server-side.
func NewWebSocketCarrierFromConn(conn *websocket.Conn) *WebSocketCarrier {
	return &WebSocketCarrier{conn: conn}
}

// DialWebSocketCarrier connects to a relay's WebSocket fallback endpoint.
func DialWebSocketCarrier(ctx context.Context, url string, headers http.Header) (*WebSocketCarrier, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("dial websocket carrier: %w", err)
	}
	return NewWebSocketCarrierFromConn(conn), nil
}

// UpgradeWebSocketCarrier upgrades an inbound HTTP request to a WebSocket
// carrier, for the relay's browser-compatibility listener.
func UpgradeWebSocketCarrier(w http.ResponseWriter, r *http.Request) (*WebSocketCarrier, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade websocket carrier: %w", err)
	}
	return NewWebSocketCarrierFromConn(conn), nil
}

// OpenStream returns the carrier's single logical stream.
func (c *WebSocketCarrier) OpenStream(ctx context.Context) (io.ReadWriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		c.stream = &wsStream{conn: c.conn}
	}
	return c.stream, nil
}

// Close tears down the underlying WebSocket connection.
func (c *WebSocketCarrier) Close() error {
	return c.conn.Close()
}

// wsStream adapts gorilla/websocket's message framing to io.ReadWriteCloser:
// each Write is one binary message, and Read drains one message at a time,
// buffering any remainder for the next call. Reads and writes use separate
// locks since gorilla/websocket allows one concurrent reader and one
// concurrent writer, just not more than one of either.
type wsStream struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	readMu sync.Mutex
	pend   []byte
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if len(s.pend) == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		s.pend = data
	}
	n := copy(p, s.pend)
	s.pend = s.pend[n:]
	return n, nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
