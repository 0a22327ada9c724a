package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/codex-sync/codex/framer"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// WebSocketConn carries one message per text frame.
type WebSocketConn struct {
	*base
	conn     *websocket.Conn
	maxFrame int64
}

// NewWebSocketConn wraps an upgraded or dialled websocket.
func NewWebSocketConn(c *websocket.Conn, sendQueue, maxFrame int) *WebSocketConn {
	if maxFrame <= 0 {
		maxFrame = framer.DefaultMaxSize
	}
	w := &WebSocketConn{conn: c, maxFrame: int64(maxFrame)}
	w.base = newBase(c.RemoteAddr().String(), sendQueue, c.Close)
	return w
}

func (w *WebSocketConn) Start() {
	if !w.startDelivery() {
		return
	}
	go w.writeLoop()
	go w.readLoop()
}

func (w *WebSocketConn) readLoop() {
	defer func() { _ = w.Close() }()
	w.conn.SetReadLimit(w.maxFrame)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("remote", w.remote).Msg("[ws] read message")
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !w.deliver(payload) {
			return
		}
	}
}

func (w *WebSocketConn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = w.Close()
	}()
	for {
		select {
		case <-w.done:
			return
		case payload := <-w.out:
			_ = w.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("remote", w.remote).Msg("[ws] write message")
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Upgrader turns HTTP requests into websocket connections.
type Upgrader struct {
	SendQueue int
	MaxFrame  int

	upgrader websocket.Upgrader
}

func NewUpgrader(sendQueue, maxFrame int) *Upgrader {
	return &Upgrader{
		SendQueue: sendQueue,
		MaxFrame:  maxFrame,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (u *Upgrader) Upgrade(rw http.ResponseWriter, r *http.Request) (*WebSocketConn, error) {
	c, err := u.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(c, u.SendQueue, u.MaxFrame), nil
}

// DialWebSocket connects to a ws:// or wss:// endpoint.
func DialWebSocket(ctx context.Context, url string, sendQueue, maxFrame int) (*WebSocketConn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &DialError{Transport: "ws", Stage: "dial", Err: err}
	}
	return NewWebSocketConn(c, sendQueue, maxFrame), nil
}
