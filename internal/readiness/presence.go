package readiness

import (
	"context"

	"github.com/hamori-app/hamori/internal/models"
)

// PeerUpdate is a readiness change reported for a non-self member.
type PeerUpdate struct {
	MemberID string `json:"member_id"`
	Ready    bool   `json:"ready"`
}

// Session describes an open session to a presence source.
type Session struct {
	ID      string
	SelfID  string
	Members []models.GroupMember
}

// Peers returns the non-self members.
func (s Session) Peers() []models.GroupMember {
	peers := make([]models.GroupMember, 0, len(s.Members))
	for _, m := range s.Members {
		if m.ID != s.SelfID {
			peers = append(peers, m)
		}
	}
	return peers
}

// PeerPresenceSource delivers readiness changes of the other members.
type PeerPresenceSource interface {
	// Subscribe streams peer updates for the session until ctx is done.
	// The returned channel is closed when the subscription ends.
	Subscribe(ctx context.Context, s Session) (<-chan PeerUpdate, error)

	// Broadcast asks the other members to get ready. Updates returned are
	// applied together once the broadcast completes; sources that deliver
	// replies through Subscribe return none.
	Broadcast(ctx context.Context, s Session) ([]PeerUpdate, error)
}
