package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/protocol"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgs       = errors.New("invalid arguments")
	ErrSelfChallenge     = errors.New("cannot challenge yourself")
	ErrTargetUnreachable = errors.New("target has no live connection")
	ErrTargetBusy        = errors.New("target already has an active game")
	ErrChallengerBusy    = errors.New("challenger already has an active game")
	ErrAlreadyPending    = errors.New("a pending challenge to this target already exists")
	ErrNotFound          = errors.New("challenge not found")
	ErrNotAuthorized     = errors.New("actor may not settle this challenge")
)

// GameStarter is the slice of the game manager the challenge manager needs on
// acceptance.
type GameStarter interface {
	Create(white, black *registry.Session) (gameID string, err error)
	HasActiveGame(identity string) bool
}

// Manager owns the live challenge set. Settlement is one-shot: the first of
// accept/decline/cancel/expire to remove a challenge from the map wins, any
// later attempt sees ErrNotFound. An unknown id and an already-settled id are
// deliberately indistinguishable to callers.
type Manager struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	timers     map[string]*time.Timer

	reg   *registry.Registry
	games GameStarter
	ttl   time.Duration
}

func NewManager(reg *registry.Registry, games GameStarter, ttl time.Duration) *Manager {
	return &Manager{
		challenges: make(map[string]*Challenge),
		timers:     make(map[string]*time.Timer),
		reg:        reg,
		games:      games,
		ttl:        ttl,
	}
}

// Create opens a pending challenge from challengerID to targetID, arms its
// expiry timer, and notifies the target. The caller acknowledges the
// challenger with the returned challenge.
func (m *Manager) Create(ctx context.Context, challengerID, targetID string) (*Challenge, error) {
	if challengerID == "" || targetID == "" {
		return nil, ErrInvalidArgs
	}
	if challengerID == targetID {
		return nil, ErrSelfChallenge
	}

	challengerSess, ok := m.reg.Lookup(challengerID)
	if !ok {
		return nil, ErrInvalidArgs
	}
	targetSess, ok := m.reg.Lookup(targetID)
	if !ok {
		return nil, ErrTargetUnreachable
	}
	if m.games.HasActiveGame(targetID) {
		return nil, ErrTargetBusy
	}
	if m.games.HasActiveGame(challengerID) {
		return nil, ErrChallengerBusy
	}

	now := time.Now()
	ch := &Challenge{
		ID:           uuid.NewString(),
		Challenger:   challengerSess.Profile(),
		ChallengedID: targetID,
		Status:       StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}

	m.mu.Lock()
	for _, existing := range m.challenges {
		if existing.Challenger.ID == challengerID && existing.ChallengedID == targetID {
			m.mu.Unlock()
			return nil, ErrAlreadyPending
		}
	}
	m.challenges[ch.ID] = ch
	m.timers[ch.ID] = time.AfterFunc(m.ttl, func() { m.expire(ch.ID) })
	m.mu.Unlock()

	obslog.L().Info("challenge_create",
		zap.String("challenge_id", ch.ID),
		zap.String("challenger_id", challengerID),
		zap.String("challenged_id", targetID),
	)
	_ = targetSess.Send(ctx, protocol.NewEvent(protocol.VerbChallengeReceived, ch.Notice(StatusPending)))
	return ch, nil
}

// Accept starts a game with the challenger as white, the challenged as
// black, then settles the challenge. Only the challenged party may accept.
// A failed start (offline party, capacity) leaves the challenge pending with
// its expiry timer armed, so the accepter may retry once the challenger
// reconnects. The returned game id goes back to the accepter; the game
// manager notifies the challenger directly.
func (m *Manager) Accept(ctx context.Context, challengeID, actorID string) (string, *Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[challengeID]
	if !ok {
		return "", nil, ErrNotFound
	}
	if actorID != ch.ChallengedID {
		return "", nil, ErrNotAuthorized
	}

	white, okW := m.reg.Lookup(ch.Challenger.ID)
	black, okB := m.reg.Lookup(ch.ChallengedID)
	if !okW || !okB {
		obslog.L().Warn("challenge_accept_unreachable", zap.String("challenge_id", ch.ID))
		return "", nil, ErrTargetUnreachable
	}
	gameID, err := m.games.Create(white, black)
	if err != nil {
		return "", nil, err
	}

	if t := m.timers[challengeID]; t != nil {
		t.Stop()
		delete(m.timers, challengeID)
	}
	ch.Status = StatusAccepted
	delete(m.challenges, challengeID)

	obslog.L().Info("challenge_accept",
		zap.String("challenge_id", ch.ID),
		zap.String("game_id", gameID),
	)
	return gameID, ch, nil
}

// Decline settles the challenge and notifies the challenger. Restricted to
// the challenged party.
func (m *Manager) Decline(ctx context.Context, challengeID, actorID string) (*Challenge, error) {
	ch, err := m.settle(challengeID, actorID, StatusDeclined)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_decline", zap.String("challenge_id", ch.ID))
	if sess, ok := m.reg.Lookup(ch.Challenger.ID); ok {
		_ = sess.Send(ctx, protocol.NewEvent(protocol.VerbChallengeDeclined, ch.Notice(StatusDeclined)))
	}
	return ch, nil
}

// Cancel settles the challenge and notifies the challenged party. Restricted
// to the challenger.
func (m *Manager) Cancel(ctx context.Context, challengeID, actorID string) (*Challenge, error) {
	ch, err := m.settle(challengeID, actorID, StatusCancelled)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_cancel", zap.String("challenge_id", ch.ID))
	if sess, ok := m.reg.Lookup(ch.ChallengedID); ok {
		_ = sess.Send(ctx, protocol.NewEvent(protocol.VerbChallengeCancelled, ch.Notice(StatusCancelled)))
	}
	return ch, nil
}

// Pending returns whether the id is still in the live set (tests).
func (m *Manager) Pending(challengeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.challenges[challengeID]
	return ok
}

// Stop disarms all expiry timers (shutdown).
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// settle performs the one-shot terminal transition under the manager lock:
// authorization check, timer disarm, removal from the live set.
func (m *Manager) settle(challengeID, actorID string, to Status) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.challenges[challengeID]
	if !ok {
		return nil, ErrNotFound
	}
	switch to {
	case StatusDeclined:
		if actorID != ch.ChallengedID {
			return nil, ErrNotAuthorized
		}
	case StatusCancelled:
		if actorID != ch.Challenger.ID {
			return nil, ErrNotAuthorized
		}
	}
	if t := m.timers[challengeID]; t != nil {
		t.Stop()
		delete(m.timers, challengeID)
	}
	ch.Status = to
	delete(m.challenges, challengeID)
	return ch, nil
}

// expire fires from the challenge's timer. If a settlement raced ahead, the
// challenge is already gone and this is a no-op; both parties are notified
// exactly once otherwise.
func (m *Manager) expire(challengeID string) {
	m.mu.Lock()
	ch, ok := m.challenges[challengeID]
	if !ok || ch.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	ch.Status = StatusExpired
	delete(m.challenges, challengeID)
	delete(m.timers, challengeID)
	m.mu.Unlock()

	obslog.L().Info("challenge_expire", zap.String("challenge_id", challengeID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env := protocol.NewEvent(protocol.VerbChallengeExpired, ch.Notice(StatusExpired))
	if sess, ok := m.reg.Lookup(ch.Challenger.ID); ok {
		_ = sess.Send(ctx, env)
	}
	if sess, ok := m.reg.Lookup(ch.ChallengedID); ok {
		_ = sess.Send(ctx, env)
	}
}
