package challenge

import (
	"time"

	"github.com/park285/chess-arena/pkg/protocol"
)

// Status represents a challenge lifecycle state. Every state except pending
// is terminal; a terminal transition removes the challenge from the live set.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusDeclined  Status = "DECLINED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Challenge is a proposed game awaiting the target's response.
type Challenge struct {
	ID           string
	Challenger   protocol.Profile
	ChallengedID string
	Status       Status
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Notice renders the challenge for wire delivery with the given status.
func (c *Challenge) Notice(status Status) protocol.ChallengeNotice {
	return protocol.ChallengeNotice{
		ID:           c.ID,
		Challenger:   c.Challenger,
		ChallengedID: c.ChallengedID,
		Status:       string(status),
		CreatedAt:    c.CreatedAt,
		ExpiresAt:    c.ExpiresAt,
	}
}
