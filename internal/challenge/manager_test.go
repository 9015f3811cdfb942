package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

func (f *fakeConn) countVerb(verb string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.sent {
		if env.Verb == verb {
			n++
		}
	}
	return n
}

type fakeGames struct {
	mu        sync.Mutex
	active    map[string]bool
	created   int
	createErr error
}

func (f *fakeGames) Create(white, black *registry.Session) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return "game-1", nil
}

func (f *fakeGames) HasActiveGame(identity string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[identity]
}

func harness(t *testing.T, ttl time.Duration) (*Manager, *registry.Registry, *fakeGames, *fakeConn, *fakeConn) {
	t.Helper()
	reg := registry.New()
	games := &fakeGames{active: make(map[string]bool)}
	m := NewManager(reg, games, ttl)
	t.Cleanup(m.Stop)

	c1 := &fakeConn{}
	reg.Register(protocol.Profile{ID: "u1", Username: "alice"}, c1)
	c2 := &fakeConn{}
	reg.Register(protocol.Profile{ID: "u2", Username: "bob"}, c2)
	return m, reg, games, c1, c2
}

func TestCreateNotifiesTarget(t *testing.T) {
	m, _, _, _, c2 := harness(t, time.Minute)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.Status != StatusPending {
		t.Fatalf("expected pending, got %s", ch.Status)
	}
	if c2.countVerb(protocol.VerbChallengeReceived) != 1 {
		t.Fatalf("target not notified")
	}
}

func TestCreateRejections(t *testing.T) {
	m, _, games, _, _ := harness(t, time.Minute)
	ctx := context.Background()

	if _, err := m.Create(ctx, "u1", "u1"); err != ErrSelfChallenge {
		t.Fatalf("self challenge: got %v", err)
	}
	if _, err := m.Create(ctx, "u1", "nobody"); err != ErrTargetUnreachable {
		t.Fatalf("unreachable target: got %v", err)
	}

	games.mu.Lock()
	games.active["u2"] = true
	games.mu.Unlock()
	if _, err := m.Create(ctx, "u1", "u2"); err != ErrTargetBusy {
		t.Fatalf("busy target: got %v", err)
	}

	games.mu.Lock()
	games.active = map[string]bool{"u1": true}
	games.mu.Unlock()
	if _, err := m.Create(ctx, "u1", "u2"); err != ErrChallengerBusy {
		t.Fatalf("busy challenger: got %v", err)
	}
}

func TestDuplicatePendingRejected(t *testing.T) {
	m, _, _, _, _ := harness(t, time.Minute)
	ctx := context.Background()

	if _, err := m.Create(ctx, "u1", "u2"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := m.Create(ctx, "u1", "u2"); err != ErrAlreadyPending {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}
}

func TestSettlementAuthorization(t *testing.T) {
	m, _, _, _, _ := harness(t, time.Minute)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// only the challenged party may accept or decline
	if _, _, err := m.Accept(ctx, ch.ID, "u1"); err != ErrNotAuthorized {
		t.Fatalf("challenger accept: got %v", err)
	}
	if _, err := m.Decline(ctx, ch.ID, "u1"); err != ErrNotAuthorized {
		t.Fatalf("challenger decline: got %v", err)
	}
	// only the challenger may cancel
	if _, err := m.Cancel(ctx, ch.ID, "u2"); err != ErrNotAuthorized {
		t.Fatalf("challenged cancel: got %v", err)
	}
	if !m.Pending(ch.ID) {
		t.Fatalf("failed authorization must leave the challenge pending")
	}
}

func TestSettlementIsOneShot(t *testing.T) {
	m, _, games, _, _ := harness(t, time.Minute)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	gameID, _, err := m.Accept(ctx, ch.ID, "u2")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if gameID == "" || games.created != 1 {
		t.Fatalf("expected one game created")
	}

	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != ErrNotFound {
		t.Fatalf("second accept: got %v", err)
	}
	if _, err := m.Decline(ctx, ch.ID, "u2"); err != ErrNotFound {
		t.Fatalf("decline after accept: got %v", err)
	}
	if _, err := m.Cancel(ctx, ch.ID, "u1"); err != ErrNotFound {
		t.Fatalf("cancel after accept: got %v", err)
	}
}

func TestFailedAcceptLeavesChallengePending(t *testing.T) {
	m, reg, _, c1, _ := harness(t, time.Minute)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// the challenger drops right before acceptance
	reg.MarkOffline("u1", c1)
	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != ErrTargetUnreachable {
		t.Fatalf("accept with offline challenger: got %v", err)
	}
	if !m.Pending(ch.ID) {
		t.Fatalf("failed accept must leave the challenge pending")
	}

	// once the challenger reconnects the same challenge is still acceptable
	reg.Register(protocol.Profile{ID: "u1", Username: "alice"}, c1)
	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != nil {
		t.Fatalf("retry after reconnect: %v", err)
	}
	if m.Pending(ch.ID) {
		t.Fatalf("successful accept must settle the challenge")
	}
}

func TestAcceptGameStartFailureLeavesChallengePending(t *testing.T) {
	m, _, games, _, _ := harness(t, time.Minute)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	startErr := errors.New("room limit reached")
	games.mu.Lock()
	games.createErr = startErr
	games.mu.Unlock()

	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != startErr {
		t.Fatalf("accept with failing game start: got %v", err)
	}
	if !m.Pending(ch.ID) {
		t.Fatalf("failed game start must leave the challenge pending")
	}

	games.mu.Lock()
	games.createErr = nil
	games.mu.Unlock()
	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestDeclineNotifiesChallenger(t *testing.T) {
	m, _, _, c1, _ := harness(t, time.Minute)
	ctx := context.Background()

	ch, _ := m.Create(ctx, "u1", "u2")
	if _, err := m.Decline(ctx, ch.ID, "u2"); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if c1.countVerb(protocol.VerbChallengeDeclined) != 1 {
		t.Fatalf("challenger not notified of decline")
	}
}

func TestCancelNotifiesChallenged(t *testing.T) {
	m, _, _, _, c2 := harness(t, time.Minute)
	ctx := context.Background()

	ch, _ := m.Create(ctx, "u1", "u2")
	if _, err := m.Cancel(ctx, ch.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c2.countVerb(protocol.VerbChallengeCancelled) != 1 {
		t.Fatalf("challenged party not notified of cancel")
	}
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	m, _, _, c1, c2 := harness(t, 30*time.Millisecond)
	ctx := context.Background()

	ch, err := m.Create(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Pending(ch.ID) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Pending(ch.ID) {
		t.Fatalf("challenge did not expire")
	}
	// give the notification sends a moment
	time.Sleep(50 * time.Millisecond)

	if got := c1.countVerb(protocol.VerbChallengeExpired); got != 1 {
		t.Fatalf("challenger expiry notices = %d, want 1", got)
	}
	if got := c2.countVerb(protocol.VerbChallengeExpired); got != 1 {
		t.Fatalf("challenged expiry notices = %d, want 1", got)
	}
	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != ErrNotFound {
		t.Fatalf("accept after expiry: got %v", err)
	}
}

func TestSettlementDisarmsExpiryTimer(t *testing.T) {
	m, _, _, c1, c2 := harness(t, 30*time.Millisecond)
	ctx := context.Background()

	ch, _ := m.Create(ctx, "u1", "u2")
	if _, _, err := m.Accept(ctx, ch.ID, "u2"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if c1.countVerb(protocol.VerbChallengeExpired) != 0 || c2.countVerb(protocol.VerbChallengeExpired) != 0 {
		t.Fatalf("expiry fired after settlement")
	}
}
