package presence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func dialPeer(t *testing.T, server *httptest.Server, session, member string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?session=" + session + "&member=" + member
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The hub acknowledges registration before anything else.
	if f := readFrame(t, conn); f.Type != FrameJoined || f.MemberID != member {
		t.Fatalf("unexpected first frame %+v", f)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	return f
}

func TestHub_ReadyFramesReachSubscriber(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := hub.Subscribe(ctx, testSession(false, false))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	conn := dialPeer(t, server, "s1", "p1")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ready","ready":true}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := collect(t, updates, 1)[0]
	if got.MemberID != "p1" || !got.Ready {
		t.Errorf("update = %+v", got)
	}
}

func TestHub_OtherSessionsIsolated(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := hub.Subscribe(ctx, testSession(false, false))

	other := dialPeer(t, server, "s2", "p1")
	_ = other.WriteMessage(websocket.TextMessage, []byte(`{"type":"ready","ready":true}`))
	mine := dialPeer(t, server, "s1", "p2")
	_ = mine.WriteMessage(websocket.TextMessage, []byte(`{"type":"ready","ready":true}`))

	got := collect(t, updates, 1)[0]
	if got.MemberID != "p2" {
		t.Errorf("received update from another session: %+v", got)
	}
}

func TestHub_BroadcastSendsNotify(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialPeer(t, server, "s1", "p1")

	updates, err := hub.Broadcast(context.Background(), testSession(false, false))
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("hub broadcast should not answer for devices, got %+v", updates)
	}

	f := readFrame(t, conn)
	if f.Type != FrameNotify || f.SessionID != "s1" {
		t.Errorf("frame = %+v", f)
	}
}

func TestHub_RequiresSessionAndMember(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	resp, err := http.Get(server.URL + "/?session=s1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHub_SubscriptionClosesOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	updates, _ := hub.Subscribe(ctx, testSession(false))
	cancel()

	select {
	case _, ok := <-updates:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}
