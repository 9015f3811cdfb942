package game

import (
	"context"
	"sync"
	"time"

	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/protocol"
)

// Deactivation reasons recorded on the final snapshot.
const (
	ReasonCheckmate     = "checkmate"
	ReasonStalemate     = "stalemate"
	ReasonResignation   = "resignation"
	ReasonDrawAgreement = "draw_agreement"
)

// WinnerDraw marks a drawn game in the winner field.
const WinnerDraw = "draw"

type participant struct {
	profile protocol.Profile
	sess    *registry.Session
}

// Game is one two-party match. White is always the challenger, black the
// challenged; the assignment is fixed at creation. Games are never deleted,
// only deactivated, so reconnectors and spectators can still fetch final
// state.
type Game struct {
	mu sync.Mutex

	id    string
	white participant
	black participant

	moves []protocol.Move
	// movesUCI mirrors moves in UCI notation; maintained only under strict
	// validation, where the board is reconstructed from it.
	movesUCI []string

	// turn is stored explicitly, never derived from move-count parity.
	turn      protocol.Color
	active    bool
	winner    string
	reason    string
	drawOffer protocol.Color

	createdAt time.Time
	updatedAt time.Time

	spectators map[string]*registry.Session
}

func (g *Game) snapshotLocked() *protocol.GameSnapshot {
	moves := make([]protocol.Move, len(g.moves))
	copy(moves, g.moves)
	return &protocol.GameSnapshot{
		ID:        g.id,
		White:     g.white.profile,
		Black:     g.black.profile,
		Moves:     moves,
		Turn:      g.turn,
		Active:    g.active,
		Winner:    g.winner,
		Reason:    g.reason,
		DrawOffer: g.drawOffer,
		CreatedAt: g.createdAt,
		UpdatedAt: g.updatedAt,
	}
}

// Snapshot returns a copy of the full current state.
func (g *Game) Snapshot() *protocol.GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) colorOf(identity string) (protocol.Color, bool) {
	switch identity {
	case g.white.profile.ID:
		return protocol.White, true
	case g.black.profile.ID:
		return protocol.Black, true
	}
	return "", false
}

func (g *Game) sessionFor(color protocol.Color) *registry.Session {
	if color == protocol.White {
		return g.white.sess
	}
	return g.black.sess
}

// broadcastLocked relays env to both participants and all spectators, minus
// the excluded identities. Delivery is best-effort; an offline peer simply
// misses the event.
func (g *Game) broadcastLocked(ctx context.Context, env *protocol.Envelope, exclude ...string) {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	for _, p := range []participant{g.white, g.black} {
		if _, ok := skip[p.profile.ID]; ok {
			continue
		}
		if p.sess != nil {
			_ = p.sess.Send(ctx, env)
		}
	}
	for id, sess := range g.spectators {
		if _, ok := skip[id]; ok {
			continue
		}
		_ = sess.Send(ctx, env)
	}
}

// StartedNotice builds the individualized game:started payload for one side.
func (g *Game) StartedNotice(color protocol.Color) protocol.GameStartedNotice {
	g.mu.Lock()
	defer g.mu.Unlock()
	opp := g.black.profile
	if color == protocol.Black {
		opp = g.white.profile
	}
	return protocol.GameStartedNotice{GameID: g.id, Color: color, Opponent: opp, Turn: g.turn}
}
