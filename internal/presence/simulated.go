// Package presence provides PeerPresenceSource implementations: a local
// simulation, a WebSocket hub that real devices connect to, and an MQTT
// bridge.
package presence

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/readiness"
)

// NotifyResponseProbability is the chance a notified peer becomes ready.
const NotifyResponseProbability = 0.5

// Simulated stands in for real devices. Every interval one non-self member
// chosen uniformly at random is assigned a random readiness. A broadcast
// completes after latency and makes each non-ready peer ready with
// NotifyResponseProbability.
type Simulated struct {
	interval time.Duration
	latency  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulation with a seeded random source. The same
// seed yields the same sequence of choices.
func NewSimulated(interval, latency time.Duration, seed uint64) *Simulated {
	return NewSimulatedWithRand(interval, latency, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewSimulatedWithRand creates a simulation drawing from rng.
func NewSimulatedWithRand(interval, latency time.Duration, rng *rand.Rand) *Simulated {
	return &Simulated{interval: interval, latency: latency, rng: rng}
}

// Subscribe starts the peer tick for s.
func (p *Simulated) Subscribe(ctx context.Context, s readiness.Session) (<-chan readiness.PeerUpdate, error) {
	out := make(chan readiness.PeerUpdate)
	peers := s.Peers()

	go func() {
		defer close(out)
		if len(peers) == 0 {
			<-ctx.Done()
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				u := p.tick(peers)
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *Simulated) tick(peers []models.GroupMember) readiness.PeerUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := peers[p.rng.IntN(len(peers))]
	return readiness.PeerUpdate{MemberID: m.ID, Ready: p.rng.IntN(2) == 0}
}

// Broadcast waits the notify latency, then answers for each non-ready peer.
func (p *Simulated) Broadcast(ctx context.Context, s readiness.Session) ([]readiness.PeerUpdate, error) {
	timer := time.NewTimer(p.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var updates []readiness.PeerUpdate
	for _, m := range s.Peers() {
		if m.IsReady {
			continue
		}
		if p.rng.Float64() < NotifyResponseProbability {
			updates = append(updates, readiness.PeerUpdate{MemberID: m.ID, Ready: true})
		}
	}
	return updates, nil
}
