package readiness

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/hamori-app/hamori/internal/models"
)

// fakeSource is a PeerPresenceSource driven by the test. Each Subscribe
// gets its own channel so a closing session's pump cannot steal updates.
type fakeSource struct {
	mu      sync.Mutex
	current chan PeerUpdate
	subErr  error

	// release, when set, blocks Broadcast until closed. Broadcast ignores
	// ctx so completions can arrive after the session moved on.
	release          chan struct{}
	broadcastUpdates []PeerUpdate
}

func newFakeSource() *fakeSource {
	return &fakeSource{}
}

func (f *fakeSource) Subscribe(ctx context.Context, s Session) (<-chan PeerUpdate, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = make(chan PeerUpdate, 16)
	return f.current, nil
}

func (f *fakeSource) send(u PeerUpdate) {
	f.mu.Lock()
	ch := f.current
	f.mu.Unlock()
	ch <- u
}

func (f *fakeSource) Broadcast(ctx context.Context, s Session) ([]PeerUpdate, error) {
	if f.release != nil {
		<-f.release
	}
	return f.broadcastUpdates, nil
}

type recorder struct {
	mu     sync.Mutex
	counts map[Event]int
}

func newRecorder() *recorder {
	return &recorder{counts: make(map[Event]int)}
}

func (r *recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[e]++
}

func (r *recorder) count(e Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[e]
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnAllReady:       func(string) { r.add(EventAllReady) },
		OnNotify:         func(string) { r.add(EventNotify) },
		OnNoReadyMembers: func(string) { r.add(EventNoReadyMembers) },
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func members(ready ...bool) []models.GroupMember {
	ids := []string{"self", "p1", "p2", "p3", "p4"}
	out := make([]models.GroupMember, len(ready))
	for i, r := range ready {
		out[i] = models.GroupMember{ID: ids[i], DisplayName: ids[i], IsReady: r}
	}
	return out
}

func memberReady(s Snapshot, id string) bool {
	for _, m := range s.Members {
		if m.ID == id {
			return m.IsReady
		}
	}
	return false
}

func newTestCoordinator(t *testing.T, src PeerPresenceSource, rec *recorder, tick time.Duration) *Coordinator {
	t.Helper()
	c := New(src, rec.hooks(), Config{CountdownFrom: 3, CountdownTick: tick})
	t.Cleanup(c.Stop)
	return c
}

func TestToggleSelfReady_CountdownCompletes(t *testing.T) {
	rec := newRecorder()
	c := newTestCoordinator(t, newFakeSource(), rec, 5*time.Millisecond)

	if err := c.Open(context.Background(), "s1", "self", members(false, true)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c.ToggleSelfReady()

	snap := c.Snapshot()
	if !snap.Readiness.AllReady {
		t.Fatal("expected all ready after toggle")
	}
	if snap.State != Countdown && snap.State != Completed {
		t.Errorf("state = %s, want countdown", snap.State)
	}

	waitFor(t, "OnAllReady", func() bool { return rec.count(EventAllReady) == 1 })
	if got := c.Snapshot().State; got != Completed {
		t.Errorf("state = %s, want completed", got)
	}

	// Frozen once the countdown started.
	c.ToggleSelfReady()
	if !memberReady(c.Snapshot(), "self") {
		t.Error("toggle after completion should be ignored")
	}
}

func TestCountdownCancelledByClose(t *testing.T) {
	rec := newRecorder()
	c := newTestCoordinator(t, newFakeSource(), rec, 40*time.Millisecond)

	if err := c.Open(context.Background(), "s1", "self", members(false, true, true)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c.ToggleSelfReady()
	if got := c.Snapshot().State; got != Countdown {
		t.Fatalf("state = %s, want countdown", got)
	}

	c.Close()
	time.Sleep(200 * time.Millisecond)

	if n := rec.count(EventAllReady); n != 0 {
		t.Errorf("OnAllReady fired %d times after close", n)
	}
	snap := c.Snapshot()
	if snap.State != Idle {
		t.Errorf("state = %s, want idle", snap.State)
	}
	if snap.Readiness.AnyReady {
		t.Error("close must reset every member to not ready")
	}
}

func TestNoReadyMembersEmittedOnce(t *testing.T) {
	rec := newRecorder()
	c := newTestCoordinator(t, newFakeSource(), rec, time.Hour)

	if err := c.Open(context.Background(), "s1", "self", members(true, false)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c.ToggleSelfReady()

	waitFor(t, "OnNoReadyMembers", func() bool { return rec.count(EventNoReadyMembers) >= 1 })
	time.Sleep(20 * time.Millisecond)

	if n := rec.count(EventNoReadyMembers); n != 1 {
		t.Errorf("OnNoReadyMembers fired %d times, want 1", n)
	}
	if n := rec.count(EventNotify); n != 0 {
		t.Errorf("OnNotify fired %d times, want 0", n)
	}
	if got := c.Snapshot().State; got != NoneReady {
		t.Errorf("state = %s, want none_ready", got)
	}
}

func TestPeerUpdates(t *testing.T) {
	rec := newRecorder()
	src := newFakeSource()
	c := newTestCoordinator(t, src, rec, time.Hour)

	if err := c.Open(context.Background(), "s1", "self", members(false, false, false)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	src.send(PeerUpdate{MemberID: "p1", Ready: true})
	waitFor(t, "p1 ready", func() bool { return memberReady(c.Snapshot(), "p1") })
	waitFor(t, "OnNotify", func() bool { return rec.count(EventNotify) == 1 })
	if got := c.Snapshot().State; got != Tracking {
		t.Errorf("state = %s, want tracking", got)
	}

	src.send(PeerUpdate{MemberID: "p1", Ready: false})
	waitFor(t, "OnNoReadyMembers", func() bool { return rec.count(EventNoReadyMembers) == 1 })
	if got := c.Snapshot().State; got != NoneReady {
		t.Errorf("state = %s, want none_ready", got)
	}

	// Self and unknown members cannot be driven by peers. p2 is a marker
	// that the earlier updates were processed.
	src.send(PeerUpdate{MemberID: "self", Ready: true})
	src.send(PeerUpdate{MemberID: "ghost", Ready: true})
	src.send(PeerUpdate{MemberID: "p2", Ready: true})
	waitFor(t, "p2 ready", func() bool { return memberReady(c.Snapshot(), "p2") })

	snap := c.Snapshot()
	if memberReady(snap, "self") {
		t.Error("peer update must not change self")
	}
	if snap.Readiness.ReadyCount != 1 {
		t.Errorf("ready count = %d, want 1", snap.Readiness.ReadyCount)
	}
}

func TestAllReadyMatchesMembersUnderInterleaving(t *testing.T) {
	rec := newRecorder()
	src := newFakeSource()
	c := newTestCoordinator(t, src, rec, time.Hour)

	open := func() {
		if err := c.Open(context.Background(), "s1", "self", members(false, false, false, false)); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}
	open()

	rng := rand.New(rand.NewPCG(7, 11))
	peers := []string{"p1", "p2", "p3"}
	countdowns := 0

	for step := 0; step < 400; step++ {
		if rng.IntN(2) == 0 {
			c.ToggleSelfReady()
		} else {
			id := peers[rng.IntN(len(peers))]
			ready := rng.IntN(2) == 0
			if memberReady(c.Snapshot(), id) != ready {
				src.send(PeerUpdate{MemberID: id, Ready: ready})
				waitFor(t, "peer update", func() bool { return memberReady(c.Snapshot(), id) == ready })
			}
		}

		snap := c.Snapshot()
		every := true
		for _, m := range snap.Members {
			every = every && m.IsReady
		}
		if snap.Readiness.AllReady != every {
			t.Fatalf("step %d: AllReady = %v but every member ready = %v", step, snap.Readiness.AllReady, every)
		}
		if every != (snap.State == Countdown) {
			t.Fatalf("step %d: state %s with all ready = %v", step, snap.State, every)
		}
		if !every && snap.Readiness.AnyReady != (snap.State == Tracking) {
			t.Fatalf("step %d: state %s with any ready = %v", step, snap.State, snap.Readiness.AnyReady)
		}

		if snap.State == Countdown {
			countdowns++
			c.Close()
			open()
		}
	}

	if countdowns == 0 {
		t.Error("sequence never reached all ready; pick another seed")
	}
}

func TestNotifyMembers_EmitsOnce(t *testing.T) {
	rec := newRecorder()
	src := newFakeSource()
	src.broadcastUpdates = []PeerUpdate{{MemberID: "p1", Ready: true}, {MemberID: "p2", Ready: true}}
	c := newTestCoordinator(t, src, rec, time.Hour)

	if err := c.Open(context.Background(), "s1", "self", members(false, false, false)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c.NotifyMembers()

	waitFor(t, "OnNotify", func() bool { return rec.count(EventNotify) >= 1 })
	time.Sleep(20 * time.Millisecond)

	if n := rec.count(EventNotify); n != 1 {
		t.Errorf("OnNotify fired %d times, want 1", n)
	}
	snap := c.Snapshot()
	if !memberReady(snap, "p1") || !memberReady(snap, "p2") {
		t.Errorf("broadcast updates not applied: %+v", snap.Members)
	}
	if snap.State != Tracking {
		t.Errorf("state = %s, want tracking", snap.State)
	}
}

func TestNotifyMembers_StaleCompletionDropped(t *testing.T) {
	rec := newRecorder()
	src := newFakeSource()
	src.release = make(chan struct{})
	src.broadcastUpdates = []PeerUpdate{{MemberID: "p1", Ready: true}}
	c := newTestCoordinator(t, src, rec, time.Hour)

	if err := c.Open(context.Background(), "s1", "self", members(false, false)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c.NotifyMembers()
	c.Close()
	if err := c.Open(context.Background(), "s2", "self", members(false, false)); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	close(src.release)
	time.Sleep(50 * time.Millisecond)

	if n := rec.count(EventNotify); n != 0 {
		t.Errorf("stale broadcast emitted OnNotify %d times", n)
	}
	if memberReady(c.Snapshot(), "p1") {
		t.Error("stale broadcast mutated the new session")
	}
}

func TestOpen_Errors(t *testing.T) {
	rec := newRecorder()

	t.Run("no members", func(t *testing.T) {
		c := newTestCoordinator(t, newFakeSource(), rec, time.Hour)
		if err := c.Open(context.Background(), "s", "self", nil); !errors.Is(err, ErrNoMembers) {
			t.Errorf("expected ErrNoMembers, got %v", err)
		}
	})

	t.Run("unknown self", func(t *testing.T) {
		c := newTestCoordinator(t, newFakeSource(), rec, time.Hour)
		if err := c.Open(context.Background(), "s", "nobody", members(false, false)); !errors.Is(err, ErrUnknownSelf) {
			t.Errorf("expected ErrUnknownSelf, got %v", err)
		}
	})

	t.Run("subscribe failure closes session", func(t *testing.T) {
		src := newFakeSource()
		src.subErr = errors.New("broker down")
		c := newTestCoordinator(t, src, rec, time.Hour)

		if err := c.Open(context.Background(), "s", "self", members(false, false)); err == nil {
			t.Fatal("expected subscribe error")
		}
		waitFor(t, "idle", func() bool { return c.Snapshot().State == Idle })
	})

	t.Run("stopped", func(t *testing.T) {
		c := New(newFakeSource(), rec.hooks(), Config{})
		c.Stop()
		if err := c.Open(context.Background(), "s", "self", members(false)); !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	})
}

func TestOpen_ReplacesSession(t *testing.T) {
	rec := newRecorder()
	c := newTestCoordinator(t, newFakeSource(), rec, time.Hour)

	if err := c.Open(context.Background(), "s1", "self", members(false, false)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first := c.Snapshot().Generation

	if err := c.Open(context.Background(), "s2", "self", members(false, true)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.SessionID != "s2" {
		t.Errorf("session = %q", snap.SessionID)
	}
	if snap.Generation <= first {
		t.Errorf("generation did not advance: %d -> %d", first, snap.Generation)
	}
	if snap.State != Tracking {
		t.Errorf("state = %s, want tracking", snap.State)
	}
}

func TestHooksMayCallBack(t *testing.T) {
	var c *Coordinator
	closed := make(chan struct{})
	c = New(newFakeSource(), Hooks{
		OnAllReady: func(string) {
			c.Close()
			close(closed)
		},
	}, Config{CountdownFrom: 1, CountdownTick: 5 * time.Millisecond})
	t.Cleanup(c.Stop)

	if err := c.Open(context.Background(), "s1", "self", members(false)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c.ToggleSelfReady()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("hook never ran")
	}
	if got := c.Snapshot().State; got != Idle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestSessionPeers(t *testing.T) {
	s := Session{ID: "s", SelfID: "self", Members: members(true, false, true)}
	peers := s.Peers()
	if len(peers) != 2 || peers[0].ID != "p1" || peers[1].ID != "p2" {
		t.Errorf("peers = %+v", peers)
	}
}
