package registry

import (
	"sync"
	"time"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/pkg/protocol"
	"go.uber.org/zap"
)

// Registry maps each identity to its single live connection. Registering an
// identity that already has an entry replaces the old connection; that is the
// defined reconnection path, so duplicate entries never exist.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	changeMu sync.RWMutex
	onChange []func()

	clockMu sync.RWMutex
	clock   func() time.Time
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		clock:    time.Now,
	}
}

// OnChange registers a hook fired after every registry state change. The
// presence publisher uses it to trigger recomputation.
func (r *Registry) OnChange(fn func()) {
	r.changeMu.Lock()
	r.onChange = append(r.onChange, fn)
	r.changeMu.Unlock()
}

// SetClock overrides the time source (tests).
func (r *Registry) SetClock(fn func() time.Time) {
	r.clockMu.Lock()
	r.clock = fn
	r.clockMu.Unlock()
}

func (r *Registry) now() time.Time {
	r.clockMu.RLock()
	defer r.clockMu.RUnlock()
	return r.clock()
}

// Register admits a connection for the given identity. Idempotent: the
// per-identity session record is reused across reconnects, and any previous
// connection is closed.
func (r *Registry) Register(profile protocol.Profile, conn Conn) *Session {
	now := r.now()

	r.mu.Lock()
	sess, ok := r.sessions[profile.ID]
	if !ok {
		sess = &Session{}
		r.sessions[profile.ID] = sess
	}
	r.mu.Unlock()

	old := sess.attach(profile, conn, now)
	if old != nil {
		_ = old.Close("replaced by reconnect")
		obslog.L().Info("session_replaced", zap.String("identity", profile.ID))
	} else if !ok {
		obslog.L().Info("session_registered", zap.String("identity", profile.ID), zap.String("username", profile.Username))
	}
	r.fireChange()
	return sess
}

// Lookup returns the session for identity only when it has a live connection.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[identity]
	r.mu.RUnlock()
	if !ok || !sess.Online() {
		return nil, false
	}
	return sess, true
}

// Get returns the session record regardless of connection state.
func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[identity]
	return sess, ok
}

// MarkOffline detaches conn from its session, retaining the record with a
// last-seen timestamp. It is a no-op when conn is no longer the session's
// current connection.
func (r *Registry) MarkOffline(identity string, conn Conn) bool {
	r.mu.RLock()
	sess, ok := r.sessions[identity]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !sess.detach(conn, r.now()) {
		return false
	}
	obslog.L().Info("session_offline", zap.String("identity", identity))
	r.fireChange()
	return true
}

// Touch refreshes the heartbeat for identity.
func (r *Registry) Touch(identity string) {
	r.mu.RLock()
	sess, ok := r.sessions[identity]
	r.mu.RUnlock()
	if ok {
		sess.touch(r.now())
	}
}

// ActiveIdentities returns identities whose heartbeat is within window and
// that currently hold a live connection.
func (r *Registry) ActiveIdentities(window time.Duration) []string {
	cutoff := r.now().Add(-window)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id, sess := range r.sessions {
		if sess.Online() && !sess.LastSeen().Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

// Len reports the number of known session records, online or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) fireChange() {
	r.changeMu.RLock()
	hooks := make([]func(), len(r.onChange))
	copy(hooks, r.onChange)
	r.changeMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
