package presence

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/hamori-app/hamori/internal/metrics"
	"github.com/hamori-app/hamori/internal/readiness"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Frame types exchanged with devices.
const (
	FrameJoined = "joined" // hub -> device after registration
	FrameReady  = "ready"  // device -> hub
	FrameNotify = "notify" // hub -> device
)

// Frame is the JSON message exchanged over the presence socket.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	MemberID  string `json:"member_id,omitempty"`
	Ready     bool   `json:"ready,omitempty"`
}

// Hub is a PeerPresenceSource backed by member devices connected over
// WebSocket at /presence?session=<id>&member=<id>.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	subs  map[chan readiness.PeerUpdate]struct{}
	peers map[*peer]struct{}
}

type peer struct {
	sessionID string
	memberID  string
	conn      *websocket.Conn
	send      chan Frame
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

func (h *Hub) roomLocked(sessionID string) *room {
	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{
			subs:  make(map[chan readiness.PeerUpdate]struct{}),
			peers: make(map[*peer]struct{}),
		}
		h.rooms[sessionID] = r
	}
	return r
}

func (h *Hub) gcLocked(sessionID string) {
	if r, ok := h.rooms[sessionID]; ok && len(r.subs) == 0 && len(r.peers) == 0 {
		delete(h.rooms, sessionID)
	}
}

// ServeHTTP upgrades a device connection and registers it with its session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	memberID := r.URL.Query().Get("member")
	if sessionID == "" || memberID == "" {
		http.Error(w, "session and member are required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Presence upgrade failed", "error", err)
		return
	}

	p := &peer{sessionID: sessionID, memberID: memberID, conn: conn, send: make(chan Frame, 16)}

	h.mu.Lock()
	h.roomLocked(sessionID).peers[p] = struct{}{}
	h.mu.Unlock()
	metrics.PresenceConnections.Inc()
	slog.Info("Presence device connected", "session_id", sessionID, "member_id", memberID)

	p.send <- Frame{Type: FrameJoined, SessionID: sessionID, MemberID: memberID}
	go p.writePump()
	h.readPump(p)
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	if r, ok := h.rooms[p.sessionID]; ok {
		if _, ok := r.peers[p]; ok {
			delete(r.peers, p)
			close(p.send)
		}
	}
	h.gcLocked(p.sessionID)
	h.mu.Unlock()
	metrics.PresenceConnections.Dec()
	slog.Info("Presence device disconnected", "session_id", p.sessionID, "member_id", p.memberID)
}

func (h *Hub) readPump(p *peer) {
	defer func() {
		h.unregister(p)
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	if err := p.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Unexpected presence close", "member_id", p.memberID, "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("Ignoring malformed presence frame", "member_id", p.memberID, "error", err)
			continue
		}
		if f.Type != FrameReady {
			continue
		}
		h.deliver(p.sessionID, readiness.PeerUpdate{MemberID: p.memberID, Ready: f.Ready})
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case f, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(f)
			if err != nil {
				continue
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver fans an update out to every subscriber of the session. Slow
// subscribers lose updates rather than stall the device.
func (h *Hub) deliver(sessionID string, u readiness.PeerUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for ch := range r.subs {
		select {
		case ch <- u:
		default:
			slog.Warn("Presence subscriber full, dropping update", "session_id", sessionID, "member_id", u.MemberID)
		}
	}
}

// Subscribe registers a subscriber for device updates of s.
func (h *Hub) Subscribe(ctx context.Context, s readiness.Session) (<-chan readiness.PeerUpdate, error) {
	ch := make(chan readiness.PeerUpdate, 16)

	h.mu.Lock()
	h.roomLocked(s.ID).subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if r, ok := h.rooms[s.ID]; ok {
			delete(r.subs, ch)
		}
		h.gcLocked(s.ID)
		h.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Broadcast sends a notify frame to every connected device of s. Replies
// arrive through Subscribe.
func (h *Hub) Broadcast(ctx context.Context, s readiness.Session) ([]readiness.PeerUpdate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[s.ID]
	if !ok {
		return nil, nil
	}
	f := Frame{Type: FrameNotify, SessionID: s.ID}
	for p := range r.peers {
		select {
		case p.send <- f:
		default:
			slog.Warn("Presence device send buffer full", "session_id", s.ID, "member_id", p.memberID)
		}
	}
	return nil, nil
}
