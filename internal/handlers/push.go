package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/moodtunes/backend/internal/broker"
	"github.com/moodtunes/backend/internal/logging"
	"github.com/moodtunes/backend/internal/metrics"
	"github.com/moodtunes/backend/internal/middleware"
	"github.com/moodtunes/backend/internal/models"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = 30 * time.Second

	defaultSendBuffer = 16
)

var (
	// ErrQueueFull is returned by Deliver when the connection's outbound
	// queue has no room. The broker then drops the connection.
	ErrQueueFull = errors.New("push: outbound queue full")
	// ErrClosed is returned by Deliver after the connection terminated.
	ErrClosed = errors.New("push: connection closed")
)

// Registry is the part of the session broker the push channel needs.
type Registry interface {
	Register(sub broker.Subscriber, sessionID string) string
	Deregister(sub broker.Subscriber)
}

// PushHandler upgrades requests to WebSocket push connections and joins them
// to sessions on request.
type PushHandler struct {
	registry   Registry
	metrics    *metrics.Metrics
	sendBuffer int
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	conns   map[*pushConn]struct{}
	closing bool
	active  sync.WaitGroup
}

// NewPushHandler creates a PushHandler. Browser origins not in
// allowedOrigins are refused during the handshake.
func NewPushHandler(registry Registry, m *metrics.Metrics, allowedOrigins []string, sendBuffer int) *PushHandler {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &PushHandler{
		registry:   registry,
		metrics:    m,
		sendBuffer: sendBuffer,
		conns:      make(map[*pushConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin")) {
					return true
				}
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventPushOriginRejected, "push origin rejected")
				return false
			},
		},
	}
}

// pushConn is one WebSocket client. Frames for it are queued on send and
// written by a single writer goroutine.
type pushConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// Deliver queues msg without blocking.
func (c *pushConn) Deliver(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the writer, which sends a close frame and closes the socket.
// Safe to call more than once and from any goroutine.
func (c *pushConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Serve handles GET /ws and GET /.
func (h *PushHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.DebugContext(r.Context(), "push upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := &pushConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	if !h.track(conn) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(pushWriteWait))
		ws.Close()
		return
	}
	defer h.untrack(conn)

	h.metrics.ConnectionOpened()
	slog.Debug("push connection opened", slog.String("conn_id", conn.id))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn.writePump()
	}()

	h.readLoop(conn)

	h.registry.Deregister(conn)
	conn.Close()
	wg.Wait()

	h.metrics.ConnectionClosed()
	slog.Debug("push connection closed", slog.String("conn_id", conn.id))
}

func (h *PushHandler) track(conn *pushConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *PushHandler) untrack(conn *pushConn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.active.Done()
}

// CloseAll sends a close frame to every open connection and refuses new
// ones. http.Server.Shutdown does not track hijacked connections, so
// register this with RegisterOnShutdown.
func (h *PushHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	for conn := range h.conns {
		conn.Close()
	}
}

// Wait blocks until every connection has been torn down or ctx is done.
func (h *PushHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop processes client commands until the connection fails or sends
// a frame that is not JSON.
func (h *PushHandler) readLoop(conn *pushConn) {
	ws := conn.ws
	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pushPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pushPongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("push read failed", slog.String("conn_id", conn.id), slog.String("error", err.Error()))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pushPongWait))

		var cmd models.PushCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Warn("push frame is not valid JSON, closing", slog.String("conn_id", conn.id))
			return
		}

		switch cmd.Action {
		case models.ActionJoin:
			sessionID := h.registry.Register(conn, cmd.SessionID)
			slog.Debug("push connection joined session",
				slog.String("conn_id", conn.id), slog.String("session_id", sessionID))

			welcome, err := welcomeFrame(sessionID)
			if err != nil {
				slog.Error("push welcome encoding failed", slog.String("conn_id", conn.id), slog.String("error", err.Error()))
				return
			}
			if err := conn.Deliver(welcome); err != nil {
				return
			}
		default:
			// unknown actions are ignored
		}
	}
}

func welcomeFrame(sessionID string) ([]byte, error) {
	return json.Marshal(models.WelcomeMessage{
		Type:    models.MessageTypeWelcome,
		Message: "Connected to session " + sessionID,
	})
}

// writePump is the only goroutine that writes to the socket.
func (c *pushConn) writePump() {
	ticker := time.NewTicker(pushPingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(pushWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(pushWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(pushWriteWait))
			return
		}
	}
}
