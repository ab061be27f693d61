package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/moodtunes/backend/internal/broker"
	"github.com/moodtunes/backend/internal/metrics"
	"github.com/moodtunes/backend/internal/models"
)

type pushFixture struct {
	handler *PushHandler
	broker  *broker.Broker
	metrics *metrics.Metrics
	server  *httptest.Server
	wsURL   string
}

func newPushFixture(t *testing.T, origins []string) *pushFixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	b := broker.New(m)
	h := NewPushHandler(b, m, origins, 4)

	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	t.Cleanup(srv.Close)

	return &pushFixture{
		handler: h,
		broker:  b,
		metrics: m,
		server:  srv,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *pushFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, sessionID string) models.WelcomeMessage {
	t.Helper()
	if err := conn.WriteJSON(models.PushCommand{Action: models.ActionJoin, SessionID: sessionID}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	var welcome models.WelcomeMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	return welcome
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPushJoinAndReceive(t *testing.T) {
	f := newPushFixture(t, nil)
	conn := f.dial(t)

	welcome := join(t, conn, "room-1")
	if welcome.Type != models.MessageTypeWelcome || welcome.Message != "Connected to session room-1" {
		t.Errorf("welcome = %+v", welcome)
	}

	event := models.ResultEvent{Type: models.MessageTypeSuggestion, Data: models.MoodResult{Mood: "happy", Language: "english", PlaylistID: "p1", PlaylistURL: "u1"}}
	delivered, err := f.broker.Publish("room-1", event)
	if err != nil || delivered != 1 {
		t.Fatalf("Publish() = %d, %v", delivered, err)
	}

	var got models.ResultEvent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got != event {
		t.Errorf("event = %+v, want %+v", got, event)
	}
}

func TestPushJoinWithoutSessionUsesDefault(t *testing.T) {
	f := newPushFixture(t, nil)
	conn := f.dial(t)

	welcome := join(t, conn, "")
	if welcome.Message != "Connected to session default" {
		t.Errorf("welcome = %q", welcome.Message)
	}
	if f.broker.Subscribers(broker.DefaultSessionID) != 1 {
		t.Error("connection not registered under default")
	}
}

func TestPushRejoinMovesSession(t *testing.T) {
	f := newPushFixture(t, nil)
	conn := f.dial(t)

	join(t, conn, "a")
	join(t, conn, "b")

	if f.broker.Subscribers("a") != 0 || f.broker.Subscribers("b") != 1 {
		t.Errorf("subscribers a=%d b=%d", f.broker.Subscribers("a"), f.broker.Subscribers("b"))
	}
	if n, _ := f.broker.Publish("a", map[string]string{"type": "x"}); n != 0 {
		t.Errorf("old session still delivers to %d", n)
	}
}

func TestPushIgnoresUnknownAction(t *testing.T) {
	f := newPushFixture(t, nil)
	conn := f.dial(t)

	if err := conn.WriteJSON(map[string]string{"action": "dance"}); err != nil {
		t.Fatal(err)
	}
	welcome := join(t, conn, "room-1")
	if welcome.Type != models.MessageTypeWelcome {
		t.Errorf("connection should survive unknown actions, got %+v", welcome)
	}
}

func TestPushInvalidJSONTerminates(t *testing.T) {
	f := newPushFixture(t, nil)
	conn := f.dial(t)
	join(t, conn, "room-1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
	waitFor(t, "deregistration", func() bool { return f.broker.Subscribers("room-1") == 0 })
}

func TestPushClientDisconnectDeregisters(t *testing.T) {
	f := newPushFixture(t, nil)
	conn := f.dial(t)
	join(t, conn, "room-1")

	if got := testutil.ToFloat64(f.metrics.PushConnections); got != 1 {
		t.Errorf("open connections = %v, want 1", got)
	}

	conn.Close()

	waitFor(t, "deregistration", func() bool { return f.broker.Subscribers("room-1") == 0 })
	waitFor(t, "connection gauge", func() bool { return testutil.ToFloat64(f.metrics.PushConnections) == 0 })
	if n, _ := f.broker.Publish("room-1", map[string]string{"type": "x"}); n != 0 {
		t.Errorf("publish after disconnect delivered to %d", n)
	}
}

func TestPushFanOutToSession(t *testing.T) {
	f := newPushFixture(t, nil)
	a := f.dial(t)
	b := f.dial(t)
	other := f.dial(t)
	join(t, a, "shared")
	join(t, b, "shared")
	join(t, other, "elsewhere")

	if n, _ := f.broker.Publish("shared", models.ResultEvent{Type: models.MessageTypeAudio, Data: models.MoodResult{Mood: "calm"}}); n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		var got models.ResultEvent
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.Data.Mood != "calm" {
			t.Errorf("event = %+v", got)
		}
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("connection in another session received the event")
	}
}

func TestPushRejectsForeignOrigin(t *testing.T) {
	f := newPushFixture(t, []string{"http://localhost:3000"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestPushConnDeliver(t *testing.T) {
	c := &pushConn{send: make(chan []byte, 1), done: make(chan struct{})}

	if err := c.Deliver([]byte("1")); err != nil {
		t.Fatalf("first Deliver() error = %v", err)
	}
	if err := c.Deliver([]byte("2")); err != ErrQueueFull {
		t.Errorf("Deliver() on full queue = %v, want ErrQueueFull", err)
	}

	c.Close()
	c.Close()
	if err := c.Deliver([]byte("3")); err != ErrClosed {
		t.Errorf("Deliver() after Close = %v, want ErrClosed", err)
	}
}

func TestPushEventJSONShape(t *testing.T) {
	b, _ := json.Marshal(models.ResultEvent{Type: "audio", Data: models.MoodResult{Mood: "calm", PlaylistID: "p", PlaylistURL: "u"}})
	want := `{"type":"audio","data":{"mood":"calm","playlistId":"p","playlistUrl":"u"}}`
	if string(b) != want {
		t.Errorf("event JSON = %s, want %s", b, want)
	}
}

func TestPushCloseAllDrainsConnections(t *testing.T) {
	f := newPushFixture(t, nil)
	conns := []*websocket.Conn{f.dial(t), f.dial(t)}
	for _, c := range conns {
		join(t, c, "room-1")
	}

	f.handler.CloseAll()

	for i, c := range conns {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := c.ReadMessage()
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
			t.Errorf("conn %d: read error = %v, want close 1000", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.handler.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if n := f.broker.Subscribers("room-1"); n != 0 {
		t.Errorf("subscribers after drain = %d", n)
	}
	if got := testutil.ToFloat64(f.metrics.PushConnections); got != 0 {
		t.Errorf("connection gauge = %v", got)
	}
}

func TestPushRefusesConnectionsAfterCloseAll(t *testing.T) {
	f := newPushFixture(t, nil)
	f.handler.CloseAll()

	conn := f.dial(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseGoingAway {
		t.Errorf("read error = %v, want close 1001", err)
	}
	if got := testutil.ToFloat64(f.metrics.PushConnections); got != 0 {
		t.Errorf("connection gauge = %v", got)
	}
}

func TestPushWaitHonorsContext(t *testing.T) {
	f := newPushFixture(t, nil)
	join(t, f.dial(t), "room-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.handler.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestWelcomeFrame(t *testing.T) {
	tests := []struct {
		sessionID string
		want      string
	}{
		{"room-1", `{"type":"welcome","message":"Connected to session room-1"}`},
		{"default", `{"type":"welcome","message":"Connected to session default"}`},
		{`say "hi"`, `{"type":"welcome","message":"Connected to session say \"hi\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.sessionID, func(t *testing.T) {
			got, err := welcomeFrame(tt.sessionID)
			if err != nil {
				t.Fatalf("welcomeFrame() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("welcomeFrame() = %s, want %s", got, tt.want)
			}
		})
	}
}
