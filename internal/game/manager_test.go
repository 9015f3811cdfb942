package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/protocol"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
}

func (f *fakeConn) Send(_ context.Context, env *protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) Close(string) error { return nil }

func (f *fakeConn) lastByVerb(t *testing.T, verb string, into any) bool {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Verb != verb {
			continue
		}
		if into != nil {
			if err := json.Unmarshal(f.sent[i].Payload, into); err != nil {
				t.Fatalf("decode %s payload: %v", verb, err)
			}
		}
		return true
	}
	return false
}

type harness struct {
	m     *Manager
	reg   *registry.Registry
	white *registry.Session
	black *registry.Session
	cw    *fakeConn
	cb    *fakeConn
}

func newHarness(t *testing.T, validation config.MoveValidation) *harness {
	t.Helper()
	reg := registry.New()
	cw := &fakeConn{}
	white := reg.Register(protocol.Profile{ID: "u1", Username: "alice"}, cw)
	cb := &fakeConn{}
	black := reg.Register(protocol.Profile{ID: "u2", Username: "bob"}, cb)
	return &harness{
		m:     NewManager(validation, 10),
		reg:   reg,
		white: white,
		black: black,
		cw:    cw,
		cb:    cb,
	}
}

func (h *harness) createGame(t *testing.T) string {
	t.Helper()
	id, err := h.m.Create(h.white, h.black)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func (h *harness) addSpectator(t *testing.T, id string) (*registry.Session, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	sess := h.reg.Register(protocol.Profile{ID: id, Username: id}, c)
	return sess, c
}

func TestCreateFixedColorAssignment(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)

	var started protocol.GameStartedNotice
	if !h.cw.lastByVerb(t, protocol.VerbGameStarted, &started) {
		t.Fatalf("challenger did not receive game:started")
	}
	if started.Color != protocol.White || started.Opponent.ID != "u2" {
		t.Fatalf("challenger notice wrong: %+v", started)
	}
	if started.Turn != protocol.White {
		t.Fatalf("initial turn must be white")
	}

	notice, err := h.m.StartedFor(gameID, "u2")
	if err != nil {
		t.Fatalf("StartedFor: %v", err)
	}
	if notice.Color != protocol.Black || notice.Opponent.ID != "u1" {
		t.Fatalf("challenged notice wrong: %+v", notice)
	}
	if !h.m.HasActiveGame("u1") || !h.m.HasActiveGame("u2") {
		t.Fatalf("both participants should be busy")
	}
}

func TestTurnAlternation(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()
	mv := protocol.MoveInput{From: protocol.Square{Row: 1, Col: 0}, To: protocol.Square{Row: 2, Col: 0}, Piece: "pawn"}

	// the first accepted move must come from white
	if _, err := h.m.MakeMove(ctx, gameID, "u2", mv, ""); err != ErrWrongTurn {
		t.Fatalf("black first move: got %v", err)
	}

	snap, err := h.m.MakeMove(ctx, gameID, "u1", mv, "")
	if err != nil {
		t.Fatalf("white move: %v", err)
	}
	if snap.Turn != protocol.Black || len(snap.Moves) != 1 {
		t.Fatalf("after white move: turn=%s moves=%d", snap.Turn, len(snap.Moves))
	}

	// opponent gets the relayed update
	var update protocol.GameSnapshot
	if !h.cb.lastByVerb(t, protocol.VerbGameUpdate, &update) {
		t.Fatalf("black did not receive gameUpdate")
	}
	if update.Turn != protocol.Black || len(update.Moves) != 1 {
		t.Fatalf("relayed update wrong: turn=%s moves=%d", update.Turn, len(update.Moves))
	}

	// white cannot move again before black
	if _, err := h.m.MakeMove(ctx, gameID, "u1", mv, ""); err != ErrWrongTurn {
		t.Fatalf("white double move: got %v", err)
	}

	snap, err = h.m.MakeMove(ctx, gameID, "u2", mv, "")
	if err != nil {
		t.Fatalf("black move: %v", err)
	}
	if snap.Turn != protocol.White || len(snap.Moves) != 2 {
		t.Fatalf("after black move: turn=%s moves=%d", snap.Turn, len(snap.Moves))
	}
}

func TestMoveErrors(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()
	mv := protocol.MoveInput{From: protocol.Square{Row: 1, Col: 0}, To: protocol.Square{Row: 2, Col: 0}}

	if _, err := h.m.MakeMove(ctx, "missing", "u1", mv, ""); err != ErrNotFound {
		t.Fatalf("unknown game: got %v", err)
	}
	if _, err := h.m.MakeMove(ctx, gameID, "u3", mv, ""); err != ErrNotParticipant {
		t.Fatalf("outsider move: got %v", err)
	}

	if _, err := h.m.Resign(ctx, gameID, "u1"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if _, err := h.m.MakeMove(ctx, gameID, "u2", mv, ""); err != ErrGameInactive {
		t.Fatalf("move on finished game: got %v", err)
	}
}

func TestResign(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)

	snap, err := h.m.Resign(context.Background(), gameID, "u1")
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if snap.Active || snap.Winner != "u2" || snap.Reason != ReasonResignation {
		t.Fatalf("unexpected final state: %+v", snap)
	}

	var update protocol.GameSnapshot
	if !h.cb.lastByVerb(t, protocol.VerbGameUpdate, &update) {
		t.Fatalf("opponent did not receive the result")
	}
	if update.Active || update.Winner != "u2" {
		t.Fatalf("relayed result wrong: %+v", update)
	}
	if h.m.HasActiveGame("u1") || h.m.HasActiveGame("u2") {
		t.Fatalf("finished game still counts as active")
	}
}

func TestDrawHandshake(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()

	if _, err := h.m.RespondDraw(ctx, gameID, "u2", true); err != ErrNoDrawOffer {
		t.Fatalf("respond with no offer: got %v", err)
	}

	snap, err := h.m.OfferDraw(ctx, gameID, "u1")
	if err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if snap.DrawOffer != protocol.White {
		t.Fatalf("offer flag = %q", snap.DrawOffer)
	}
	if !h.cb.lastByVerb(t, protocol.VerbOfferDraw, nil) {
		t.Fatalf("opponent did not receive the offer")
	}

	if _, err := h.m.OfferDraw(ctx, gameID, "u2"); err != ErrDrawAlreadyOffered {
		t.Fatalf("second offer: got %v", err)
	}
	if _, err := h.m.RespondDraw(ctx, gameID, "u1", true); err != ErrOwnDrawOffer {
		t.Fatalf("responding to own offer: got %v", err)
	}

	snap, err = h.m.RespondDraw(ctx, gameID, "u2", true)
	if err != nil {
		t.Fatalf("RespondDraw: %v", err)
	}
	if snap.Active || snap.Winner != WinnerDraw || snap.Reason != ReasonDrawAgreement {
		t.Fatalf("unexpected draw state: %+v", snap)
	}
}

func TestDrawRefusalClearsOffer(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()

	if _, err := h.m.OfferDraw(ctx, gameID, "u1"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	snap, err := h.m.RespondDraw(ctx, gameID, "u2", false)
	if err != nil {
		t.Fatalf("RespondDraw: %v", err)
	}
	if !snap.Active || snap.DrawOffer != "" {
		t.Fatalf("refusal must clear the offer and keep playing: %+v", snap)
	}
}

func TestOpponentMoveClearsPendingOffer(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()

	mv := protocol.MoveInput{From: protocol.Square{Row: 1, Col: 0}, To: protocol.Square{Row: 2, Col: 0}}
	if _, err := h.m.MakeMove(ctx, gameID, "u1", mv, ""); err != nil {
		t.Fatalf("white move: %v", err)
	}
	if _, err := h.m.OfferDraw(ctx, gameID, "u1"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	snap, err := h.m.MakeMove(ctx, gameID, "u2", mv, "")
	if err != nil {
		t.Fatalf("black move: %v", err)
	}
	if snap.DrawOffer != "" {
		t.Fatalf("black moving past the offer should clear it")
	}
}

func TestSpectatorJoinAndRelay(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()

	sess, spec := h.addSpectator(t, "u3")
	snap, err := h.m.Join(ctx, gameID, sess)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if snap.ID != gameID || !snap.Active || snap.Turn != protocol.White {
		t.Fatalf("spectator snapshot wrong: %+v", snap)
	}

	mv := protocol.MoveInput{From: protocol.Square{Row: 1, Col: 4}, To: protocol.Square{Row: 3, Col: 4}, Piece: "pawn"}
	if _, err := h.m.MakeMove(ctx, gameID, "u1", mv, ""); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !spec.lastByVerb(t, protocol.VerbGameUpdate, nil) {
		t.Fatalf("spectator missed the update")
	}

	msg, err := h.m.SendMessage(ctx, gameID, "u3", "nice opening")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.SenderID != "u3" || msg.SentAt.IsZero() {
		t.Fatalf("chat message wrong: %+v", msg)
	}
	var chat protocol.ChatMessage
	if !h.cw.lastByVerb(t, protocol.VerbNewMessage, &chat) || chat.Content != "nice opening" {
		t.Fatalf("white missed the chat relay")
	}
	if !h.cb.lastByVerb(t, protocol.VerbNewMessage, nil) {
		t.Fatalf("black missed the chat relay")
	}
}

func TestChatRequiresRoomMembership(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()

	sess, _ := h.addSpectator(t, "u3")

	// connected but never joined: no chat access
	if _, err := h.m.SendMessage(ctx, gameID, "u3", "hi"); err != ErrNotParticipant {
		t.Fatalf("outsider chat: got %v", err)
	}
	if h.cw.lastByVerb(t, protocol.VerbNewMessage, nil) {
		t.Fatalf("outsider chat was relayed")
	}

	if _, err := h.m.Join(ctx, gameID, sess); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := h.m.SendMessage(ctx, gameID, "u3", "hi"); err != nil {
		t.Fatalf("spectator chat after join: %v", err)
	}
}

func TestParticipantRejoinGetsSnapshot(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)
	ctx := context.Background()

	mv := protocol.MoveInput{From: protocol.Square{Row: 1, Col: 0}, To: protocol.Square{Row: 2, Col: 0}}
	if _, err := h.m.MakeMove(ctx, gameID, "u1", mv, ""); err != nil {
		t.Fatalf("move: %v", err)
	}

	snap, err := h.m.Join(ctx, gameID, h.black)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(snap.Moves) != 1 || snap.Turn != protocol.Black {
		t.Fatalf("rejoin snapshot stale: %+v", snap)
	}
}

func TestClaimedCheckmateEndsGame(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	gameID := h.createGame(t)

	mv := protocol.MoveInput{From: protocol.Square{Row: 1, Col: 0}, To: protocol.Square{Row: 2, Col: 0}}
	snap, err := h.m.MakeMove(context.Background(), gameID, "u1", mv, ReasonCheckmate)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if snap.Active || snap.Winner != "u1" || snap.Reason != ReasonCheckmate {
		t.Fatalf("claimed mate not applied: %+v", snap)
	}
}

func TestNotifyDisconnect(t *testing.T) {
	h := newHarness(t, config.ValidationOff)
	h.createGame(t)

	h.m.NotifyDisconnect(context.Background(), "u1")

	var notice protocol.PlayerDisconnectedNotice
	if !h.cb.lastByVerb(t, protocol.VerbPlayerDisconnected, &notice) {
		t.Fatalf("opponent missed the disconnect notice")
	}
	if notice.PlayerID != "u1" {
		t.Fatalf("wrong player id: %+v", notice)
	}
}

func TestConcurrentGameLimit(t *testing.T) {
	reg := registry.New()
	m := NewManager(config.ValidationOff, 1)
	a := reg.Register(protocol.Profile{ID: "a", Username: "a"}, &fakeConn{})
	b := reg.Register(protocol.Profile{ID: "b", Username: "b"}, &fakeConn{})
	c := reg.Register(protocol.Profile{ID: "c", Username: "c"}, &fakeConn{})
	d := reg.Register(protocol.Profile{ID: "d", Username: "d"}, &fakeConn{})

	if _, err := m.Create(a, b); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := m.Create(c, d); err != ErrTooManyGames {
		t.Fatalf("expected ErrTooManyGames, got %v", err)
	}
}
