package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
)

func setupTestHub(t testing.TB) *Hub {
	hub := NewHub(nil, nil, zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func startServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.GET("/ws/:id", func(c echo.Context) error {
		// client goroutines outlive the test
		return HandleWebSocketWithAuth(hub, c, c.Param("id"), zap.NewNop())
	})
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers(sessionID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d subscribers for %s, got %d", want, sessionID, hub.Subscribers(sessionID))
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())

	if hub.clients == nil {
		t.Error("Hub clients map not initialized")
	}

	if hub.register == nil {
		t.Error("Hub register channel not initialized")
	}

	if hub.unregister == nil {
		t.Error("Hub unregister channel not initialized")
	}
}

func TestHub_PublishReachesSessionSubscribersOnly(t *testing.T) {
	hub := setupTestHub(t)
	server := startServer(t, hub)

	first := dial(t, server, "session-a")
	second := dial(t, server, "session-a")
	other := dial(t, server, "session-b")
	waitForSubscribers(t, hub, "session-a", 2)
	waitForSubscribers(t, hub, "session-b", 1)

	hub.Publish("session-a", domain.ProgressMessage{
		Type:      domain.MessageTypeProgress,
		SessionID: "session-a",
		Stage:     domain.StageAnalyzing,
		Label:     "Analyzing your case...",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg domain.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if msg.Stage != domain.StageAnalyzing {
			t.Errorf("Expected stage %s, got %s", domain.StageAnalyzing, msg.Stage)
		}
		if msg.SessionID != "session-a" {
			t.Errorf("Expected session-a, got %s", msg.SessionID)
		}
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("Subscriber of another session should not receive the message")
	}
}

func TestHub_PingPong(t *testing.T) {
	hub := setupTestHub(t)
	server := startServer(t, hub)

	conn := dial(t, server, "session-ping")
	waitForSubscribers(t, hub, "session-ping", 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","data":"hello"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong PongMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if pong.Type != MessageTypePong || pong.Data != "hello" {
		t.Errorf("Unexpected pong %+v", pong)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"listening_start"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	var errMsg ErrorMessage
	if err := conn.ReadJSON(&errMsg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if errMsg.Type != MessageTypeError || errMsg.Code != "invalid_message" {
		t.Errorf("Unexpected error message %+v", errMsg)
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := setupTestHub(t)
	server := startServer(t, hub)

	conn := dial(t, server, "session-close")
	waitForSubscribers(t, hub, "session-close", 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitForSubscribers(t, hub, "session-close", 0)

	// Publishing to a session without subscribers is a no-op
	hub.Publish("session-close", map[string]string{"type": "progress"})
}

func TestHub_Disconnect(t *testing.T) {
	hub := setupTestHub(t)
	server := startServer(t, hub)

	conn := dial(t, server, "session-gone")
	waitForSubscribers(t, hub, "session-gone", 1)

	hub.Disconnect("session-gone")
	if n := hub.Subscribers("session-gone"); n != 0 {
		t.Errorf("Expected no subscribers, got %d", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the connection to be closed")
	}
}

func TestHub_PublishMarshalsJSON(t *testing.T) {
	hub := NewHub(nil, nil, zap.NewNop())
	client := &Client{hub: hub, sessionID: "s", send: make(chan WriteData, 1)}
	hub.clients["s"] = map[*Client]bool{client: true}

	hub.Publish("s", domain.ResultMessage{Type: domain.MessageTypeResult, SessionID: "s", ReplyText: "Rest.", HasAudio: true})

	select {
	case data := <-client.send:
		if data.Type != websocket.TextMessage {
			t.Errorf("Expected text message, got %d", data.Type)
		}
		var msg domain.ResultMessage
		if err := json.Unmarshal(data.Payload, &msg); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if msg.ReplyText != "Rest." || !msg.HasAudio {
			t.Errorf("Unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Message not received within timeout")
	}

	// Buffer is full now; the slow client is dropped
	hub.Publish("s", domain.ResultMessage{Type: domain.MessageTypeResult})
	hub.Publish("s", domain.ResultMessage{Type: domain.MessageTypeResult})
	if n := hub.Subscribers("s"); n != 0 {
		t.Errorf("Expected slow client to be dropped, got %d subscribers", n)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"no list", nil, "https://any.example", true},
		{"listed", []string{"https://app.example"}, "https://app.example", true},
		{"not listed", []string{"https://app.example"}, "https://evil.example", false},
		{"no origin header", []string{"https://app.example"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) CleanupExpired(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestSessionCleanupService(t *testing.T) {
	cleaner := &countingCleaner{}
	service := NewSessionCleanupService(cleaner, 10*time.Millisecond, zaptest.NewLogger(t))
	service.Start()

	deadline := time.Now().Add(2 * time.Second)
	for cleaner.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	service.Stop()
	service.Stop()

	if cleaner.calls.Load() < 2 {
		t.Errorf("Expected periodic cleanup, got %d calls", cleaner.calls.Load())
	}

	calls := cleaner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if cleaner.calls.Load() != calls {
		t.Error("Cleanup ran after Stop")
	}
}

type fakeSessionSource struct{}

func (fakeSessionSource) GetSession(ctx context.Context, sessionID string) (*entities.Session, error) {
	if sessionID != "session-known" {
		return nil, domain.ErrSessionNotFound
	}
	session := entities.NewSession(entities.PersonaModern, entities.LanguageEnglish, time.Minute)
	session.ID = sessionID
	return session, nil
}

func TestHub_StatusRequest(t *testing.T) {
	hub := setupTestHub(t)
	server := startServer(t, hub)

	conn := dial(t, server, "session-known")
	waitForSubscribers(t, hub, "session-known", 1)

	t.Run("without a source", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status"}`)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var errMsg ErrorMessage
		if err := conn.ReadJSON(&errMsg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if errMsg.Code != "status_unavailable" {
			t.Errorf("Unexpected reply %+v", errMsg)
		}
	})

	hub.SetSessionSource(fakeSessionSource{})

	t.Run("known session", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status"}`)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var status StatusMessage
		if err := conn.ReadJSON(&status); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if status.Type != MessageTypeStatus || status.SessionID != "session-known" || status.State != string(entities.StateIdle) || status.HasResult {
			t.Errorf("Unexpected status %+v", status)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		other := dial(t, server, "session-gone")
		waitForSubscribers(t, hub, "session-gone", 1)
		if err := other.WriteMessage(websocket.TextMessage, []byte(`{"type":"status"}`)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		other.SetReadDeadline(time.Now().Add(2 * time.Second))
		var errMsg ErrorMessage
		if err := other.ReadJSON(&errMsg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if errMsg.Code != "status_unavailable" || !strings.Contains(errMsg.Details, "session not found") {
			t.Errorf("Unexpected reply %+v", errMsg)
		}
	})
}
