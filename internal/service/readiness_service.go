package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/hamori-app/hamori/internal/metrics"
	"github.com/hamori-app/hamori/internal/readiness"
	"github.com/hamori-app/hamori/internal/storage"
	"github.com/hamori-app/hamori/pkg/api"
)

// Ensure ReadinessService implements the handler interface
var _ api.ReadinessServiceHandler = (*ReadinessService)(nil)

// ErrSessionNotFound is returned for unknown or closed session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ReadinessService runs one readiness coordinator per open session.
type ReadinessService struct {
	store    storage.Store
	presence readiness.PeerPresenceSource
	cfg      readiness.Config

	mu       sync.Mutex
	sessions map[string]*readinessSession
}

type readinessSession struct {
	id      string
	groupID string
	coord   *readiness.Coordinator

	mu     sync.Mutex
	events []*api.SessionEvent
}

func (s *readinessSession) record(e readiness.Event) {
	metrics.ReadinessEvents.WithLabelValues(e.String()).Inc()
	slog.Info("Readiness event", "session_id", s.id, "event", e.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &api.SessionEvent{Type: e.String(), At: time.Now().Unix()})
}

func (s *readinessSession) eventLog() []*api.SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*api.SessionEvent(nil), s.events...)
}

// NewReadinessService creates a ReadinessService. presence supplies peer
// readiness for every session.
func NewReadinessService(store storage.Store, presence readiness.PeerPresenceSource, cfg readiness.Config) *ReadinessService {
	return &ReadinessService{
		store:    store,
		presence: presence,
		cfg:      cfg,
		sessions: make(map[string]*readinessSession),
	}
}

// Shutdown stops every open session.
func (s *ReadinessService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*readinessSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.coord.Stop()
		metrics.ActiveSessions.Dec()
	}
}

func (s *ReadinessService) lookup(id string) (*readinessSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", ErrSessionNotFound, id))
	}
	return sess, nil
}

func (s *ReadinessService) toAPISession(sess *readinessSession) *api.Session {
	snap := sess.coord.Snapshot()

	out := &api.Session{
		Id:         sess.id,
		GroupId:    sess.groupID,
		State:      snap.State.String(),
		Members:    make([]*api.SessionMember, len(snap.Members)),
		AnyReady:   snap.Readiness.AnyReady,
		AllReady:   snap.Readiness.AllReady,
		ReadyCount: int32(snap.Readiness.ReadyCount),
		Events:     sess.eventLog(),
	}
	if snap.State == readiness.Countdown {
		out.CountdownRemaining = int32(snap.Remaining)
	}
	for i, m := range snap.Members {
		out.Members[i] = &api.SessionMember{
			Id:          m.ID,
			DisplayName: m.DisplayName,
			AvatarRef:   m.AvatarRef,
			IsReady:     m.IsReady,
			IsSelf:      m.ID == snap.SelfID,
		}
	}
	return out
}

// OpenSession starts a readiness session over a stored group.
func (s *ReadinessService) OpenSession(ctx context.Context, req *connect.Request[api.OpenSessionRequest]) (*connect.Response[api.OpenSessionResponse], error) {
	slog.Info("OpenSession request received",
		"group_id", req.Msg.GroupId,
		"self_member_id", req.Msg.SelfMemberId,
	)

	group, err := s.store.GetGroup(ctx, req.Msg.GroupId)
	if err != nil {
		slog.Error("OpenSession failed", "group_id", req.Msg.GroupId, "error", err)
		return nil, storeError(err)
	}

	sess := &readinessSession{id: uuid.New().String(), groupID: group.ID}
	sess.coord = readiness.New(s.presence, readiness.Hooks{
		OnAllReady:       func(string) { sess.record(readiness.EventAllReady) },
		OnNotify:         func(string) { sess.record(readiness.EventNotify) },
		OnNoReadyMembers: func(string) { sess.record(readiness.EventNoReadyMembers) },
	}, s.cfg)

	if err := sess.coord.Open(ctx, sess.id, req.Msg.SelfMemberId, group.Members); err != nil {
		sess.coord.Stop()
		slog.Error("OpenSession failed", "group_id", group.ID, "error", err)
		switch {
		case errors.Is(err, readiness.ErrUnknownSelf):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		case errors.Is(err, readiness.ErrNoMembers):
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		default:
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	slog.Info("Session opened", "session_id", sess.id, "group_id", group.ID)

	return connect.NewResponse(&api.OpenSessionResponse{Session: s.toAPISession(sess)}), nil
}

// ToggleReady flips the caller's own readiness.
func (s *ReadinessService) ToggleReady(ctx context.Context, req *connect.Request[api.ToggleReadyRequest]) (*connect.Response[api.ToggleReadyResponse], error) {
	sess, err := s.lookup(req.Msg.SessionId)
	if err != nil {
		return nil, err
	}
	sess.coord.ToggleSelfReady()
	return connect.NewResponse(&api.ToggleReadyResponse{Session: s.toAPISession(sess)}), nil
}

// NotifyMembers asks the other members to get ready. Replies arrive
// asynchronously and show up in later GetSession calls.
func (s *ReadinessService) NotifyMembers(ctx context.Context, req *connect.Request[api.NotifyMembersRequest]) (*connect.Response[api.NotifyMembersResponse], error) {
	sess, err := s.lookup(req.Msg.SessionId)
	if err != nil {
		return nil, err
	}
	sess.coord.NotifyMembers()
	slog.Info("Members notified", "session_id", sess.id)
	return connect.NewResponse(&api.NotifyMembersResponse{Session: s.toAPISession(sess)}), nil
}

// GetSession returns the session snapshot and its event log.
func (s *ReadinessService) GetSession(ctx context.Context, req *connect.Request[api.GetSessionRequest]) (*connect.Response[api.GetSessionResponse], error) {
	sess, err := s.lookup(req.Msg.SessionId)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.GetSessionResponse{Session: s.toAPISession(sess)}), nil
}

// CloseSession ends a session and releases its coordinator.
func (s *ReadinessService) CloseSession(ctx context.Context, req *connect.Request[api.CloseSessionRequest]) (*connect.Response[api.CloseSessionResponse], error) {
	s.mu.Lock()
	sess, ok := s.sessions[req.Msg.SessionId]
	delete(s.sessions, req.Msg.SessionId)
	s.mu.Unlock()
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", ErrSessionNotFound, req.Msg.SessionId))
	}

	sess.coord.Stop()
	metrics.ActiveSessions.Dec()
	slog.Info("Session closed", "session_id", sess.id)

	return connect.NewResponse(&api.CloseSessionResponse{}), nil
}
