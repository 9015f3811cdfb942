package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/protocol"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgs        = errors.New("invalid arguments")
	ErrNotFound           = errors.New("game not found")
	ErrGameInactive       = errors.New("game is not active")
	ErrNotParticipant     = errors.New("actor is not a participant of this game")
	ErrWrongTurn          = errors.New("not your turn")
	ErrIllegalMove        = errors.New("move is illegal for the current position")
	ErrDrawAlreadyOffered = errors.New("a draw offer is already pending")
	ErrNoDrawOffer        = errors.New("no draw offer is pending")
	ErrOwnDrawOffer       = errors.New("cannot respond to your own draw offer")
	ErrTooManyGames       = errors.New("concurrent game limit reached")
)

// Manager owns every game room for its active lifetime: turn enforcement,
// move relay, resignation, the draw handshake, chat, and reconnection
// snapshots. Finished games stay in memory and are additionally written to
// the attached archive and repository.
type Manager struct {
	mu           sync.RWMutex
	games        map[string]*Game
	activeByUser map[string]string

	validation config.MoveValidation
	maxGames   int
	active     int

	archive *Store
	repo    *Repository
}

func NewManager(validation config.MoveValidation, maxGames int) *Manager {
	return &Manager{
		games:        make(map[string]*Game),
		activeByUser: make(map[string]string),
		validation:   validation,
		maxGames:     maxGames,
	}
}

// AttachArchive wires the redis archive for finished-game snapshots.
func (m *Manager) AttachArchive(s *Store) {
	if m != nil {
		m.archive = s
	}
}

// AttachRepository wires a database repository for persisting final results.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

// Create opens a game with the fixed color assignment: white is the
// challenger session, black the challenged. The challenger is notified here;
// the accepter receives their individualized notice as the reply to the
// accept request.
func (m *Manager) Create(white, black *registry.Session) (string, error) {
	if white == nil || black == nil {
		return "", ErrInvalidArgs
	}
	now := time.Now()
	g := &Game{
		id:         uuid.NewString(),
		white:      participant{profile: white.Profile(), sess: white},
		black:      participant{profile: black.Profile(), sess: black},
		turn:       protocol.White,
		active:     true,
		createdAt:  now,
		updatedAt:  now,
		spectators: make(map[string]*registry.Session),
	}

	m.mu.Lock()
	if m.active >= m.maxGames {
		m.mu.Unlock()
		return "", ErrTooManyGames
	}
	m.games[g.id] = g
	m.activeByUser[g.white.profile.ID] = g.id
	m.activeByUser[g.black.profile.ID] = g.id
	m.active++
	m.mu.Unlock()

	obslog.L().Info("game_create",
		zap.String("game_id", g.id),
		zap.String("white_id", g.white.profile.ID),
		zap.String("black_id", g.black.profile.ID),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = white.Send(ctx, protocol.NewEvent(protocol.VerbGameStarted, g.StartedNotice(protocol.White)))
	return g.id, nil
}

// HasActiveGame reports whether identity participates in an active game.
func (m *Manager) HasActiveGame(identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.activeByUser[identity]
	return ok
}

// StartedFor builds the game:started notice for one participant.
func (m *Manager) StartedFor(gameID, identity string) (protocol.GameStartedNotice, error) {
	g, err := m.get(gameID)
	if err != nil {
		return protocol.GameStartedNotice{}, err
	}
	color, ok := g.colorOf(identity)
	if !ok {
		return protocol.GameStartedNotice{}, ErrNotParticipant
	}
	return g.StartedNotice(color), nil
}

// Join returns the full current snapshot. Participants and non-participants
// both succeed; non-participants are registered as spectators and receive
// subsequent room broadcasts. Ids no longer in memory fall back to the
// archive so final state stays fetchable.
func (m *Manager) Join(ctx context.Context, gameID string, sess *registry.Session) (*protocol.GameSnapshot, error) {
	g, err := m.get(gameID)
	if err != nil {
		if m.archive != nil {
			if snap, aerr := m.archive.Load(ctx, gameID); aerr == nil && snap != nil {
				return snap, nil
			}
		}
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, participant := g.colorOf(sess.ID()); !participant {
		g.spectators[sess.ID()] = sess
	}
	return g.snapshotLocked(), nil
}

// MakeMove appends the submitted move, flips the turn, and relays the update
// to the rest of the room. Legality is the submitting client's concern
// unless strict validation is configured. A terminal result claimed by the
// mover deactivates the game.
func (m *Manager) MakeMove(ctx context.Context, gameID, actorID string, input protocol.MoveInput, result string) (*protocol.GameSnapshot, error) {
	g, err := m.get(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return nil, ErrGameInactive
	}
	color, ok := g.colorOf(actorID)
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotParticipant
	}
	if color != g.turn {
		g.mu.Unlock()
		return nil, ErrWrongTurn
	}

	var outcome *strictOutcome
	if m.validation == config.ValidationStrict {
		uci, out, verr := applyStrict(g.movesUCI, input)
		if verr != nil {
			g.mu.Unlock()
			return nil, verr
		}
		g.movesUCI = append(g.movesUCI, uci)
		outcome = out
	}

	now := time.Now()
	g.moves = append(g.moves, protocol.Move{From: input.From, To: input.To, Piece: input.Piece, PlayedAt: now})
	g.turn = g.turn.Opponent()
	g.updatedAt = now
	// a move by the non-offering side stands in for declining the offer
	if g.drawOffer != "" && g.drawOffer != color {
		g.drawOffer = ""
	}

	if outcome != nil {
		// strict mode trusts the board, not the client's claim
		m.deactivateLocked(g, outcome.winnerID(g), outcome.reason)
	} else if result != "" && m.validation == config.ValidationOff {
		switch result {
		case ReasonCheckmate:
			m.deactivateLocked(g, actorID, ReasonCheckmate)
		case ReasonStalemate:
			m.deactivateLocked(g, WinnerDraw, ReasonStalemate)
		default:
			// move already applied; surface the bad claim without undoing it
			obslog.L().Warn("game_bad_result_claim", zap.String("game_id", g.id), zap.String("result", result))
		}
	}

	snap := g.snapshotLocked()
	g.broadcastLocked(ctx, protocol.NewEvent(protocol.VerbGameUpdate, snap), actorID)
	g.mu.Unlock()

	obslog.L().Info("game_move",
		zap.String("game_id", gameID),
		zap.String("user_id", actorID),
		zap.String("turn", string(snap.Turn)),
		zap.Int("moves", len(snap.Moves)),
		zap.Bool("active", snap.Active),
	)
	if !snap.Active {
		m.persistFinal(ctx, snap)
	}
	return snap, nil
}

// Resign deactivates the game with the opponent as winner and broadcasts the
// result to the whole room.
func (m *Manager) Resign(ctx context.Context, gameID, actorID string) (*protocol.GameSnapshot, error) {
	g, err := m.get(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return nil, ErrGameInactive
	}
	color, ok := g.colorOf(actorID)
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotParticipant
	}
	winner := g.profileFor(color.Opponent()).ID
	m.deactivateLocked(g, winner, ReasonResignation)
	snap := g.snapshotLocked()
	g.broadcastLocked(ctx, protocol.NewEvent(protocol.VerbGameUpdate, snap), actorID)
	g.mu.Unlock()

	obslog.L().Info("game_resign",
		zap.String("game_id", gameID),
		zap.String("resigner", actorID),
		zap.String("winner", winner),
	)
	m.persistFinal(ctx, snap)
	return snap, nil
}

// OfferDraw records a pending offer naming the offering color and relays it
// to the opponent.
func (m *Manager) OfferDraw(ctx context.Context, gameID, actorID string) (*protocol.GameSnapshot, error) {
	g, err := m.get(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return nil, ErrGameInactive
	}
	color, ok := g.colorOf(actorID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if g.drawOffer != "" {
		return nil, ErrDrawAlreadyOffered
	}
	g.drawOffer = color
	g.updatedAt = time.Now()

	snap := g.snapshotLocked()
	if opp := g.sessionFor(color.Opponent()); opp != nil {
		_ = opp.Send(ctx, protocol.NewEvent(protocol.VerbOfferDraw, snap))
	}
	obslog.L().Info("game_draw_offer", zap.String("game_id", gameID), zap.String("by", string(color)))
	return snap, nil
}

// RespondDraw settles a pending offer. Only the non-offering color may
// respond; acceptance deactivates the game as a draw, refusal just clears
// the flag.
func (m *Manager) RespondDraw(ctx context.Context, gameID, actorID string, accept bool) (*protocol.GameSnapshot, error) {
	g, err := m.get(gameID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return nil, ErrGameInactive
	}
	color, ok := g.colorOf(actorID)
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotParticipant
	}
	if g.drawOffer == "" {
		g.mu.Unlock()
		return nil, ErrNoDrawOffer
	}
	if g.drawOffer == color {
		g.mu.Unlock()
		return nil, ErrOwnDrawOffer
	}
	g.drawOffer = ""
	g.updatedAt = time.Now()
	if accept {
		m.deactivateLocked(g, WinnerDraw, ReasonDrawAgreement)
	}
	snap := g.snapshotLocked()
	g.broadcastLocked(ctx, protocol.NewEvent(protocol.VerbGameUpdate, snap), actorID)
	g.mu.Unlock()

	obslog.L().Info("game_draw_response",
		zap.String("game_id", gameID),
		zap.String("user_id", actorID),
		zap.Bool("accepted", accept),
	)
	if !snap.Active {
		m.persistFinal(ctx, snap)
	}
	return snap, nil
}

// SendMessage relays chat to the room with a server timestamp. Only
// participants and registered spectators may chat; finished rooms stay open
// for chat as long as they are held in memory.
func (m *Manager) SendMessage(ctx context.Context, gameID, actorID, content string) (*protocol.ChatMessage, error) {
	if content == "" {
		return nil, ErrInvalidArgs
	}
	g, err := m.get(gameID)
	if err != nil {
		return nil, err
	}

	msg := &protocol.ChatMessage{
		GameID:   gameID,
		SenderID: actorID,
		Content:  content,
		SentAt:   time.Now(),
	}
	g.mu.Lock()
	if _, player := g.colorOf(actorID); !player {
		if _, spectator := g.spectators[actorID]; !spectator {
			g.mu.Unlock()
			return nil, ErrNotParticipant
		}
	}
	g.broadcastLocked(ctx, protocol.NewEvent(protocol.VerbNewMessage, msg), actorID)
	g.mu.Unlock()
	return msg, nil
}

// NotifyDisconnect delivers a best-effort, one-shot disconnect notice to the
// rooms the identity is playing in. It does not end the game; the player may
// reconnect and resume.
func (m *Manager) NotifyDisconnect(ctx context.Context, identity string) {
	m.mu.RLock()
	gameID, ok := m.activeByUser[identity]
	m.mu.RUnlock()
	if !ok {
		return
	}
	g, err := m.get(gameID)
	if err != nil {
		return
	}
	env := protocol.NewEvent(protocol.VerbPlayerDisconnected, protocol.PlayerDisconnectedNotice{PlayerID: identity})
	g.mu.Lock()
	g.broadcastLocked(ctx, env, identity)
	g.mu.Unlock()
	obslog.L().Info("game_player_disconnected", zap.String("game_id", gameID), zap.String("player_id", identity))
}

func (m *Manager) get(gameID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

// deactivateLocked finalizes the game state; callers hold g.mu.
func (m *Manager) deactivateLocked(g *Game, winner, reason string) {
	g.active = false
	g.winner = winner
	g.reason = reason
	g.drawOffer = ""
	g.updatedAt = time.Now()

	m.mu.Lock()
	if m.activeByUser[g.white.profile.ID] == g.id {
		delete(m.activeByUser, g.white.profile.ID)
	}
	if m.activeByUser[g.black.profile.ID] == g.id {
		delete(m.activeByUser, g.black.profile.ID)
	}
	m.active--
	m.mu.Unlock()
}

// persistFinal writes the finished snapshot to the archive and repository
// when attached. Failures are logged, never surfaced to the player.
func (m *Manager) persistFinal(ctx context.Context, snap *protocol.GameSnapshot) {
	if m.archive != nil {
		if err := m.archive.Save(ctx, snap); err != nil {
			obslog.L().Error("game_archive_error", zap.String("game_id", snap.ID), zap.Error(err))
		}
	}
	if m.repo != nil {
		if err := m.repo.SaveResult(ctx, snap); err != nil {
			obslog.L().Error("game_result_persist_error", zap.String("game_id", snap.ID), zap.Error(err))
		}
	}
}

func (g *Game) profileFor(color protocol.Color) protocol.Profile {
	if color == protocol.White {
		return g.white.profile
	}
	return g.black.profile
}
