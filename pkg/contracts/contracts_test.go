package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/stream"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

func serveJSON(t *testing.T, body string, status int) *mastodon.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return mastodon.NewClient("mastodon.social", "test-token", mastodon.WithBaseURL(server.URL))
}

// TestContracts_AreValidJSON ensures all contract strings are valid JSON.
func TestContracts_AreValidJSON(t *testing.T) {
	contracts := map[string]string{
		"Account":      AccountContract,
		"Status":       StatusContract,
		"OwnStatus":    OwnStatusContract,
		"Notification": NotificationContract,
		"Error":        ErrorContract,
	}

	for name, contract := range contracts {
		var v interface{}
		if err := json.Unmarshal([]byte(contract), &v); err != nil {
			t.Errorf("%s contract is not valid JSON: %v", name, err)
		}
	}
}

// TestClient_ParsesAccountContract verifies verify_credentials parsing.
func TestClient_ParsesAccountContract(t *testing.T) {
	account, err := serveJSON(t, AccountContract, http.StatusOK).CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("client should parse contract response: %v", err)
	}
	if account.ID != "14715" || account.Acct != "trwnh" {
		t.Errorf("unexpected account: %+v", account)
	}
}

// TestClient_ParsesStatusContract verifies a timeline page with a reblog.
func TestClient_ParsesStatusContract(t *testing.T) {
	statuses, err := serveJSON(t, "["+StatusContract+"]", http.StatusOK).Home(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("client should parse contract response: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}

	s := statuses[0]
	if s.ID != "103270115826048975" || s.InReplyToID != nil {
		t.Errorf("unexpected status: %+v", s)
	}
	if s.Pinned != nil {
		t.Error("pinned should be unknown when the field is absent")
	}
	if s.Reblog == nil || s.MainContent().SpoilerText != "food" {
		t.Fatalf("reblog should be decoded, got %+v", s.Reblog)
	}

	text := timeline.NewHome(s).Text()
	for _, want := range []string{"Eugen boosted", "[CW: food]", "lunch was great\n10/10"} {
		if !strings.Contains(text, want) {
			t.Errorf("derived text should contain %q, got %q", want, text)
		}
	}
}

// TestClient_ParsesOwnStatusPinnedAttribute verifies the attribute the
// pinned capability probe relies on.
func TestClient_ParsesOwnStatusPinnedAttribute(t *testing.T) {
	statuses, err := serveJSON(t, "["+OwnStatusContract+"]", http.StatusOK).
		AccountStatuses(context.Background(), "14715", false, 1)
	if err != nil {
		t.Fatalf("client should parse contract response: %v", err)
	}
	if len(statuses) != 1 || !statuses[0].IsPinned() {
		t.Errorf("own status should carry pinned=true, got %+v", statuses)
	}
}

// TestClient_ReportsErrorContract verifies rejected requests surface the status.
func TestClient_ReportsErrorContract(t *testing.T) {
	_, err := serveJSON(t, ErrorContract, http.StatusUnauthorized).CurrentUser(context.Background())

	var reqErr *mastodon.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected a 401 RequestError, got %v", err)
	}
	if reqErr.Temporary() {
		t.Error("an invalid token is not a temporary failure")
	}
}

// TestStreamingFrame_DecodesThroughConnection pushes contract entities over a
// websocket and checks the events a connection reports.
func TestStreamingFrame_DecodesThroughConnection(t *testing.T) {
	update, err := StreamingFrame([]string{"user"}, "update", StatusContract)
	if err != nil {
		t.Fatal(err)
	}
	notification, err := StreamingFrame([]string{"user"}, "notification", NotificationContract)
	if err != nil {
		t.Fatal(err)
	}
	deleted, err := StreamingFrame([]string{"user"}, "delete", "103270115826048975")
	if err != nil {
		t.Fatal(err)
	}

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{update, deleted, notification} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	var mu sync.Mutex
	var events []stream.Event
	cfg := stream.Config{
		Endpoint: stream.Endpoint{
			Host:   strings.TrimPrefix(server.URL, "http://"),
			Kind:   stream.KindUser,
			Scheme: "ws",
		},
		Token: "test-token",
	}
	conn := stream.Open(context.Background(), cfg, func(ev stream.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}, stream.WithLogger(zerolog.Nop()))
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("expected opened, status and notification events, got %+v", events)
	}
	if events[0].Type != stream.Opened {
		t.Errorf("first event should be opened, got %v", events[0].Type)
	}
	if events[1].Type != stream.StatusPushed || events[1].Status.ID != "103270115826048975" {
		t.Errorf("second event should carry the status, got %+v", events[1])
	}
	if events[2].Type != stream.NotificationPushed || events[2].Notification.Type != "favourite" {
		t.Errorf("third event should carry the notification, got %+v", events[2])
	}
}
