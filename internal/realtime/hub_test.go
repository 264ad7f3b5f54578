package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tutorhub/tutorhub-api/internal/pkg/jwt"
)

func dialTestWS(t *testing.T, hub *Hub, jwtService *jwt.Service, token string) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	handler := NewHandler(hub, jwtService, nil)
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, server
}

func TestSettlementEventReachesClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	jwtService := jwt.NewService("test-secret", 15*time.Minute, time.Hour)
	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "student")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	conn, _ := dialTestWS(t, hub, jwtService, token)

	// The register channel is unbuffered; give the hub loop a beat.
	time.Sleep(50 * time.Millisecond)

	paymentID := uuid.New()
	hub.NotifySettled(userID, paymentID, 150, 350)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "payment_settled" {
		t.Errorf("expected payment_settled, got %q", event.Type)
	}
	if event.PaymentID != paymentID || event.Amount != 150 || event.NewBalance != 350 {
		t.Errorf("unexpected event payload: %+v", event)
	}
}

func TestSettlementEventOnlyToOwner(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	jwtService := jwt.NewService("test-secret", 15*time.Minute, time.Hour)
	bystander := uuid.New()
	token, err := jwtService.GenerateAccessToken(bystander, "student")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	conn, _ := dialTestWS(t, hub, jwtService, token)
	time.Sleep(50 * time.Millisecond)

	// Event for a different user must not reach this client.
	hub.NotifySettled(uuid.New(), uuid.New(), 100, 100)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("bystander received another user's settlement event")
	}
}

func TestWSRejectsBadToken(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	jwtService := jwt.NewService("test-secret", 15*time.Minute, time.Hour)
	handler := NewHandler(hub, jwtService, nil)
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure for bad token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}
