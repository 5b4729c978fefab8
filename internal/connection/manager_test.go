package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/courier/internal/config"
	"github.com/haasonsaas/courier/internal/observability"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

var testUpgrader = websocket.Upgrader{}

// newChannelServer starts a websocket server and hands each accepted
// connection to handle on its own goroutine.
func newChannelServer(t *testing.T, handle func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConnConfig() config.ConnectionConfig {
	cfg := config.Default().Connection
	cfg.Reconnect.Enabled = false
	return cfg
}

func TestManager_InitializeWithoutTokenIsNoOp(t *testing.T) {
	m := NewManager("ws://127.0.0.1:0", testConnConfig(), staticToken(""))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m.Connected() {
		t.Error("manager connected without a credential")
	}
}

func TestManager_InitializeSendsBearer(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	m := NewManager(url, testConnConfig(), staticToken("tok-1"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Teardown()

	select {
	case auth := <-gotAuth:
		if auth != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", auth)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handshake not observed")
	}
}

func TestManager_InitializeIsIdempotent(t *testing.T) {
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.ReadMessage()
	})

	m := NewManager(url, testConnConfig(), staticToken("tok"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	defer m.Teardown()
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if !m.Connected() {
		t.Error("expected live session")
	}
}

func TestManager_SubscriberReceivesPush(t *testing.T) {
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		frame, _ := json.Marshal(Frame{Event: EventRoomMessage, Data: json.RawMessage(`{"groupId":"room-1"}`)})
		conn.WriteMessage(websocket.TextMessage, frame)
		conn.ReadMessage()
	})

	m := NewManager(url, testConnConfig(), staticToken("tok"))
	received := make(chan json.RawMessage, 1)
	m.Subscribe(EventRoomMessage, func(data json.RawMessage) {
		received <- data
	})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Teardown()

	select {
	case data := <-received:
		var payload RoomMessagePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.RoomID != "room-1" {
			t.Errorf("room id = %q, want room-1", payload.RoomID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestManager_SubscribersFireInRegistrationOrder(t *testing.T) {
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		frame, _ := json.Marshal(Frame{Event: EventUserTyping, Data: json.RawMessage(`{}`)})
		conn.WriteMessage(websocket.TextMessage, frame)
		conn.ReadMessage()
	})

	m := NewManager(url, testConnConfig(), staticToken("tok"))
	const subscribers = 8
	order := make(chan int, subscribers)
	for i := 0; i < subscribers; i++ {
		i := i
		m.Subscribe(EventUserTyping, func(json.RawMessage) {
			order <- i
		})
	}

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Teardown()

	for want := 0; want < subscribers; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("handler %d fired in position %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("push not delivered to all subscribers")
		}
	}
}

func TestManager_CancelKeepsRemainingOrder(t *testing.T) {
	m := NewManager("ws://127.0.0.1:0", testConnConfig(), staticToken(""))

	var fired []string
	m.Subscribe(EventUserTyping, func(json.RawMessage) { fired = append(fired, "first") })
	middle := m.Subscribe(EventUserTyping, func(json.RawMessage) { fired = append(fired, "middle") })
	m.Subscribe(EventUserTyping, func(json.RawMessage) { fired = append(fired, "last") })

	middle.Cancel()
	m.dispatch(Frame{Event: EventUserTyping, Data: json.RawMessage(`{}`)})

	if len(fired) != 2 || fired[0] != "first" || fired[1] != "last" {
		t.Errorf("fired = %v, want [first last]", fired)
	}
}

func TestManager_SendReachesServer(t *testing.T) {
	frames := make(chan []byte, 1)
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- data
	})

	m := NewManager(url, testConnConfig(), staticToken("tok"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Teardown()

	m.Send(EventJoinRoom, "room-1")

	select {
	case data := <-frames:
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Event != EventJoinRoom {
			t.Errorf("event = %q, want %s", frame.Event, EventJoinRoom)
		}
		var roomID string
		if err := json.Unmarshal(frame.Data, &roomID); err != nil || roomID != "room-1" {
			t.Errorf("data = %s", frame.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestManager_SendWithoutSessionIsDropped(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := NewManager("ws://127.0.0.1:0", testConnConfig(), staticToken("tok"), WithMetrics(metrics))

	m.Send(EventStartTyping, "room-1")

	if got := testutil.ToFloat64(metrics.DroppedSends); got != 1 {
		t.Errorf("dropped sends = %v, want 1", got)
	}
}

func TestManager_CancelledSubscriptionStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		<-release
		frame, _ := json.Marshal(Frame{Event: EventUserTyping, Data: json.RawMessage(`{}`)})
		conn.WriteMessage(websocket.TextMessage, frame)
		conn.ReadMessage()
	})

	m := NewManager(url, testConnConfig(), staticToken("tok"))
	fired := make(chan struct{}, 1)
	sub := m.Subscribe(EventUserTyping, func(json.RawMessage) {
		fired <- struct{}{}
	})

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Teardown()

	sub.Cancel()
	close(release)

	select {
	case <-fired:
		t.Error("cancelled subscription still fired")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestManager_TeardownClosesSession(t *testing.T) {
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		conn.ReadMessage()
	})

	m := NewManager(url, testConnConfig(), staticToken("tok"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	m.Teardown()

	if m.Connected() {
		t.Error("still connected after Teardown")
	}
	// A second teardown is a no-op.
	m.Teardown()
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	connects := make(chan struct{}, 4)
	_, url := newChannelServer(t, func(conn *websocket.Conn) {
		connects <- struct{}{}
		conn.Close()
	})

	cfg := testConnConfig()
	cfg.Reconnect.Enabled = true
	cfg.Reconnect.MaxAttempts = 2
	cfg.Reconnect.InitialDelayMs = 10
	cfg.Reconnect.MaxDelayMs = 50
	cfg.Reconnect.Jitter = false

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := NewManager(url, cfg, staticToken("tok"), WithMetrics(metrics))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Teardown()

	// The server closes every connection immediately, so at least one
	// reconnect dial must follow the initial connect.
	for i := 0; i < 2; i++ {
		select {
		case <-connects:
		case <-time.After(2 * time.Second):
			t.Fatal("expected reconnect dial")
		}
	}
}
