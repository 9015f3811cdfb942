package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/chess-arena/pkg/protocol"
)

// ErrNotConnected reports a send to an identity with no live connection.
var ErrNotConnected = errors.New("session has no live connection")

// Conn is the transport handle of one live connection. Implementations must
// serialize their own writes.
type Conn interface {
	Send(ctx context.Context, env *protocol.Envelope) error
	Close(reason string) error
}

// Session is the per-identity record owned by the registry. It survives
// disconnects so in-flight challenges and games can be resumed: going
// offline clears the connection but keeps the record and its last-seen
// timestamp.
type Session struct {
	mu       sync.RWMutex
	profile  protocol.Profile
	conn     Conn
	online   bool
	lastSeen time.Time
}

// Profile returns a copy of the handshake identity metadata.
func (s *Session) Profile() protocol.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// ID returns the stable identity string.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.ID
}

// Online reports whether a live connection is attached.
func (s *Session) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// LastSeen returns the most recent activity timestamp.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Send delivers an envelope over the session's current connection.
func (s *Session) Send(ctx context.Context, env *protocol.Envelope) error {
	s.mu.RLock()
	conn, online := s.conn, s.online
	s.mu.RUnlock()
	if !online || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, env)
}

func (s *Session) attach(profile protocol.Profile, conn Conn, now time.Time) Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.conn
	s.profile = profile
	s.conn = conn
	s.online = true
	s.lastSeen = now
	if old == conn {
		return nil
	}
	return old
}

// detach marks the session offline, but only if conn is still the current
// connection. A disconnect racing behind a reconnect must not take the
// replacement offline.
func (s *Session) detach(conn Conn, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != nil && s.conn != conn {
		return false
	}
	s.conn = nil
	s.online = false
	s.lastSeen = now
	return true
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}
