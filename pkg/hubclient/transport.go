package hubclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established channel to the hub.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a new Transport. It must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DefaultReadTimeout matches the hub's pong wait for its default 54s ping
// period.
const DefaultReadTimeout = 60 * time.Second

// WebsocketDialer dials the hub's /api/ws endpoint.
type WebsocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	// ReadTimeout bounds the silence between frames from the hub. Every
	// message and every hub ping extends it. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, err
	}
	wait := d.ReadTimeout
	if wait <= 0 {
		wait = DefaultReadTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return &wsTransport{conn: conn, wait: wait}, nil
}

// wsTransport serializes writes; gorilla allows one concurrent writer.
type wsTransport struct {
	conn *websocket.Conn
	wait time.Duration
	mu   sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(t.wait))
	return data, nil
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
