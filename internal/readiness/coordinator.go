// Package readiness tracks which members of a group have signaled they are
// ready and decides when the group search may proceed.
//
// A Coordinator owns one session at a time. All session state is owned by a
// single event-loop goroutine; public methods, presence updates, broadcast
// completions and countdown ticks are serialized through it. Async work is
// tagged with the session generation it started under and dropped when the
// session was closed or reopened in the meantime.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hamori-app/hamori/internal/models"
)

var (
	// ErrNoMembers is returned by Open for an empty member list.
	ErrNoMembers = errors.New("session needs at least one member")

	// ErrUnknownSelf is returned by Open when selfID is not a member.
	ErrUnknownSelf = errors.New("self member is not part of the group")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("coordinator stopped")
)

// Config controls the countdown.
type Config struct {
	// CountdownFrom is the countdown start value. Defaults to 3.
	CountdownFrom int

	// CountdownTick is the countdown interval. Defaults to one second.
	CountdownTick time.Duration
}

// Coordinator is the group readiness state machine.
type Coordinator struct {
	presence PeerPresenceSource
	hooks    Hooks
	cfg      Config

	cmds     chan func()
	done     chan struct{}
	stopOnce sync.Once

	events *eventQueue

	// Owned by the loop goroutine.
	state      State
	sessionID  string
	selfID     string
	members    []models.GroupMember
	remaining  int
	generation uint64
	cancel     context.CancelFunc
	sessionCtx context.Context
	stopTick   context.CancelFunc
}

// New creates a Coordinator and starts its loop. Call Stop to release it.
func New(presence PeerPresenceSource, hooks Hooks, cfg Config) *Coordinator {
	if cfg.CountdownFrom <= 0 {
		cfg.CountdownFrom = 3
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}

	c := &Coordinator{
		presence: presence,
		hooks:    hooks,
		cfg:      cfg,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		events:   newEventQueue(),
	}
	go c.run()
	go c.events.dispatch(c.done, hooks)
	return c
}

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.done:
			c.closeSession()
			return
		}
	}
}

// exec runs fn on the loop and waits for it.
func (c *Coordinator) exec(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(finished) }:
	case <-c.done:
		return ErrStopped
	}
	<-finished
	return nil
}

// post queues fn on the loop unless the session generation moved on.
func (c *Coordinator) post(gen uint64, fn func()) {
	select {
	case c.cmds <- func() {
		if gen != c.generation {
			slog.Debug("Dropping stale readiness completion", "generation", gen, "current", c.generation)
			return
		}
		fn()
	}:
	case <-c.done:
	}
}

// Stop closes any open session and stops the coordinator. Pending hooks
// may be dropped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		_ = c.exec(c.closeSession)
		close(c.done)
	})
}

// Open starts a session for members with selfID as the locally controlled
// member. An open session is closed first. Member readiness is taken as
// given. ctx values are kept for the session but its cancellation is not.
func (c *Coordinator) Open(ctx context.Context, sessionID, selfID string, members []models.GroupMember) error {
	if len(members) == 0 {
		return ErrNoMembers
	}
	found := false
	for _, m := range members {
		if m.ID == selfID {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownSelf
	}

	var (
		gen  uint64
		sctx context.Context
		sess Session
	)
	err := c.exec(func() {
		c.closeSession()

		c.generation++
		gen = c.generation
		c.sessionID = sessionID
		c.selfID = selfID
		c.members = append([]models.GroupMember(nil), members...)
		c.sessionCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
		sctx = c.sessionCtx
		sess = c.session()

		r := models.ReadinessOf(c.members)
		switch {
		case r.AllReady:
			c.state = AllReady
			c.startCountdown()
		case r.AnyReady:
			c.state = Tracking
		default:
			c.state = NoneReady
		}
	})
	if err != nil {
		return err
	}

	slog.Info("Readiness session opened", "session_id", sessionID, "self_id", selfID, "members", len(members))

	if c.presence == nil {
		return nil
	}
	updates, err := c.presence.Subscribe(sctx, sess)
	if err != nil {
		c.post(gen, c.closeSession)
		return fmt.Errorf("failed to subscribe to presence: %w", err)
	}
	go c.pump(sctx, gen, updates)
	return nil
}

func (c *Coordinator) pump(ctx context.Context, gen uint64, updates <-chan PeerUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.post(gen, func() { c.applyPeers([]PeerUpdate{u}, false) })
		}
	}
}

// ToggleSelfReady flips the local member. It is ignored when no session
// is open or once the countdown has started.
func (c *Coordinator) ToggleSelfReady() {
	_ = c.exec(func() {
		if !c.state.acceptsUpdates() {
			return
		}
		before := models.ReadinessOf(c.members)
		for i := range c.members {
			if c.members[i].ID == c.selfID {
				c.members[i].IsReady = !c.members[i].IsReady
				slog.Debug("Self readiness toggled", "session_id", c.sessionID, "ready", c.members[i].IsReady)
				break
			}
		}
		c.transition(before, true)
	})
}

// NotifyMembers broadcasts a get-ready request through the presence source.
// OnNotify fires once when the broadcast completes, after any returned
// updates are applied.
func (c *Coordinator) NotifyMembers() {
	_ = c.exec(func() {
		if !c.state.acceptsUpdates() || c.presence == nil {
			return
		}
		gen := c.generation
		ctx := c.sessionCtx
		sess := c.session()

		go func() {
			updates, err := c.presence.Broadcast(ctx, sess)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("Readiness broadcast failed", "session_id", sess.ID, "error", err)
				}
				return
			}
			c.post(gen, func() {
				if c.state.acceptsUpdates() {
					c.applyPeers(updates, true)
				}
				c.emit(EventNotify)
			})
		}()
	})
}

// Close returns to Idle, resets every member to not ready and cancels the
// countdown, the presence subscription and any in-flight broadcast.
func (c *Coordinator) Close() {
	_ = c.exec(c.closeSession)
}

// Snapshot returns a copy of the current session.
func (c *Coordinator) Snapshot() Snapshot {
	var s Snapshot
	err := c.exec(func() {
		s = Snapshot{
			SessionID:  c.sessionID,
			SelfID:     c.selfID,
			State:      c.state,
			Members:    append([]models.GroupMember(nil), c.members...),
			Readiness:  models.ReadinessOf(c.members),
			Remaining:  c.remaining,
			Generation: c.generation,
		}
	})
	if err != nil {
		return Snapshot{State: Idle}
	}
	return s
}

func (c *Coordinator) session() Session {
	return Session{
		ID:      c.sessionID,
		SelfID:  c.selfID,
		Members: append([]models.GroupMember(nil), c.members...),
	}
}

// applyPeers applies updates for known non-self members. A batch emits at
// most the no-ready transition; the caller emits its own notify.
func (c *Coordinator) applyPeers(updates []PeerUpdate, batch bool) {
	if !c.state.acceptsUpdates() {
		return
	}
	before := models.ReadinessOf(c.members)
	changed := false
	for _, u := range updates {
		if u.MemberID == c.selfID {
			continue
		}
		for i := range c.members {
			if c.members[i].ID == u.MemberID && c.members[i].IsReady != u.Ready {
				c.members[i].IsReady = u.Ready
				changed = true
			}
		}
	}
	if changed {
		c.transition(before, !batch)
	}
}

// transition derives the new state after a member change and emits the
// matching events.
func (c *Coordinator) transition(before models.Readiness, notify bool) {
	after := models.ReadinessOf(c.members)

	if notify && !before.AnyReady && after.AnyReady {
		c.emit(EventNotify)
	}
	if before.AnyReady && !after.AnyReady {
		c.emit(EventNoReadyMembers)
	}

	switch {
	case after.AllReady:
		c.state = AllReady
		c.startCountdown()
	case after.AnyReady:
		c.state = Tracking
	default:
		c.state = NoneReady
	}
}

func (c *Coordinator) startCountdown() {
	c.state = Countdown
	c.remaining = c.cfg.CountdownFrom

	tctx, stop := context.WithCancel(c.sessionCtx)
	c.stopTick = stop
	gen := c.generation
	tick := c.cfg.CountdownTick

	slog.Info("Everyone is ready, countdown started", "session_id", c.sessionID, "from", c.remaining)

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-ticker.C:
				c.post(gen, c.countdownTick)
			}
		}
	}()
}

func (c *Coordinator) countdownTick() {
	if c.state != Countdown {
		return
	}
	c.remaining--
	if c.remaining > 0 {
		return
	}
	c.state = Completed
	c.stopCountdown()
	slog.Info("Countdown completed", "session_id", c.sessionID)
	c.emit(EventAllReady)
}

func (c *Coordinator) stopCountdown() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
}

// closeSession runs on the loop.
func (c *Coordinator) closeSession() {
	if c.state == Idle && c.cancel == nil {
		return
	}
	c.generation++
	c.stopCountdown()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	for i := range c.members {
		c.members[i].IsReady = false
	}
	if c.state != Idle {
		slog.Info("Readiness session closed", "session_id", c.sessionID, "state", c.state.String())
	}
	c.state = Idle
	c.remaining = 0
}

func (c *Coordinator) emit(e Event) {
	c.events.push(queuedEvent{event: e, sessionID: c.sessionID})
}
