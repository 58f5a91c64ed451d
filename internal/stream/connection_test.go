// Package stream tests verify the streaming connection against a local
// websocket server: lifecycle, frame translation and shutdown guarantees.
package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// streamServer upgrades every request and hands the socket to serve.
func streamServer(t *testing.T, serve func(*websocket.Conn, *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server, kind Kind) Config {
	return Config{
		Endpoint: Endpoint{
			Host:   strings.TrimPrefix(srv.URL, "http://"),
			Kind:   kind,
			Scheme: "ws",
		},
		Token:        "secret-token",
		PingInterval: time.Second,
	}
}

func open(t *testing.T, cfg Config, rec *recorder) *Connection {
	t.Helper()
	c := Open(context.Background(), cfg, rec.observe, WithLogger(zerolog.Nop()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// blockUntilClosed keeps the server side open until the client goes away.
func blockUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestConnection_OpensWithBearerTokenAndStreamQuery(t *testing.T) {
	var (
		mu     sync.Mutex
		header string
		stream string
	)
	srv := streamServer(t, func(conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		header = r.Header.Get("Authorization")
		stream = r.URL.Query().Get("stream")
		mu.Unlock()
		blockUntilClosed(conn)
	})

	rec := &recorder{}
	c := open(t, testConfig(srv, KindLocal), rec)

	require.Eventually(t, func() bool { return rec.count(Opened) == 1 }, waitFor, tick)
	assert.Equal(t, StateOpen, c.State())
	assert.NotEmpty(t, c.ID())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret-token", header)
	assert.Equal(t, "public:local", stream)
}

func TestConnection_TranslatesUpdateAndNotificationFrames(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn, _ *http.Request) {
		frames := []string{
			`{"stream":["user"],"event":"update","payload":"{\"id\":\"101\",\"content\":\"<p>hi</p>\",\"visibility\":\"public\"}"}`,
			`{"stream":["user"],"event":"delete","payload":"99"}`,
			`{"stream":["user"],"event":"notification","payload":"{\"id\":\"7\",\"type\":\"favourite\",\"account\":{\"id\":\"1\",\"acct\":\"alice\"}}"}`,
		}
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		blockUntilClosed(conn)
	})

	rec := &recorder{}
	open(t, testConfig(srv, KindUser), rec)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, waitFor, tick)
	events := rec.snapshot()

	assert.Equal(t, Opened, events[0].Type)
	require.Equal(t, StatusPushed, events[1].Type)
	assert.Equal(t, "101", string(events[1].Status.ID))
	require.Equal(t, NotificationPushed, events[2].Type)
	assert.Equal(t, "favourite", events[2].Notification.Type)
}

func TestConnection_MalformedFrameIsReportedAndStreamContinues(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"update","payload":"{not json"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"update","payload":"{\"id\":\"5\"}"}`))
		blockUntilClosed(conn)
	})

	rec := &recorder{}
	c := open(t, testConfig(srv, KindUser), rec)

	require.Eventually(t, func() bool { return rec.count(StatusPushed) == 1 }, waitFor, tick)

	var failed []Event
	for _, ev := range rec.snapshot() {
		if ev.Type == Failed {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 1)
	var decodeErr *DecodeError
	assert.ErrorAs(t, failed[0].Err, &decodeErr)
	assert.False(t, failed[0].Terminal())
	assert.Equal(t, StateOpen, c.State())
}

func TestConnection_ServerDisconnectFailsExactlyOnce(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	})

	rec := &recorder{}
	c := open(t, testConfig(srv, KindUser), rec)

	require.Eventually(t, func() bool { return rec.count(Failed) == 1 }, waitFor, tick)
	<-c.Done()

	assert.Equal(t, 1, rec.count(Failed))
	last := rec.snapshot()[len(rec.snapshot())-1]
	var transportErr *TransportError
	assert.ErrorAs(t, last.Err, &transportErr)
	assert.True(t, last.Terminal())
	assert.Equal(t, StateError, c.State())
}

func TestConnection_DialFailureReportsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	rec := &recorder{}
	c := open(t, testConfig(srv, KindUser), rec)

	<-c.Done()
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, Failed, events[0].Type)
	var transportErr *TransportError
	assert.ErrorAs(t, events[0].Err, &transportErr)
	assert.Equal(t, StateError, c.State())
}

func TestConnection_CloseIsIdempotentAndSilencesObserver(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn, _ *http.Request) {
		blockUntilClosed(conn)
	})

	rec := &recorder{}
	c := open(t, testConfig(srv, KindUser), rec)
	require.Eventually(t, func() bool { return rec.count(Opened) == 1 }, waitFor, tick)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	before := len(rec.snapshot())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(rec.snapshot()))
	assert.Zero(t, rec.count(Failed))
	assert.Equal(t, StateClosed, c.State())
}

func TestConnection_CloseDuringDialDeliversNothing(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	rec := &recorder{}
	c := open(t, testConfig(srv, KindUser), rec)
	require.Eventually(t, func() bool { return c.State() == StateConnecting }, waitFor, tick)

	require.NoError(t, c.Close())
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, StateClosed, c.State())
}
