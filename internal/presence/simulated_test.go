package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/readiness"
)

func testSession(ready ...bool) readiness.Session {
	ids := []string{"self", "p1", "p2", "p3", "p4"}
	members := make([]models.GroupMember, len(ready))
	for i, r := range ready {
		members[i] = models.GroupMember{ID: ids[i], IsReady: r}
	}
	return readiness.Session{ID: "s1", SelfID: "self", Members: members}
}

func collect(t *testing.T, ch <-chan readiness.PeerUpdate, n int) []readiness.PeerUpdate {
	t.Helper()
	out := make([]readiness.PeerUpdate, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case u := <-ch:
			out = append(out, u)
		case <-timeout:
			t.Fatalf("got %d updates, want %d", len(out), n)
		}
	}
	return out
}

func TestSimulatedSubscribe_SeededAndPeersOnly(t *testing.T) {
	run := func() []readiness.PeerUpdate {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sim := NewSimulated(time.Millisecond, time.Millisecond, 42)
		ch, err := sim.Subscribe(ctx, testSession(false, false, false, false))
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		return collect(t, ch, 20)
	}

	first, second := run(), run()
	for i := range first {
		if first[i].MemberID == "self" {
			t.Fatalf("update %d targets self", i)
		}
		if first[i] != second[i] {
			t.Fatalf("update %d differs across runs with the same seed: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSimulatedSubscribe_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sim := NewSimulated(time.Hour, time.Millisecond, 1)
	ch, err := sim.Subscribe(ctx, testSession(false))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSimulatedBroadcast(t *testing.T) {
	sim := NewSimulated(time.Hour, time.Millisecond, 3)
	s := testSession(false, true, false, false, false)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		updates, err := sim.Broadcast(context.Background(), s)
		if err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
		for _, u := range updates {
			if u.MemberID == "self" || u.MemberID == "p1" {
				t.Fatalf("broadcast answered for %s, which is self or already ready", u.MemberID)
			}
			if !u.Ready {
				t.Fatalf("broadcast answers only make members ready, got %+v", u)
			}
			seen[u.MemberID] = true
		}
	}
	// With p = 0.5 over 50 rounds every non-ready peer answers at least once.
	for _, id := range []string{"p2", "p3", "p4"} {
		if !seen[id] {
			t.Errorf("%s never answered", id)
		}
	}
}

func TestSimulatedBroadcast_Cancelled(t *testing.T) {
	sim := NewSimulated(time.Hour, time.Hour, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sim.Broadcast(ctx, testSession(false, false)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
