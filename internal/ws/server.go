package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/presence"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/internal/router"
	"github.com/park285/chess-arena/pkg/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Server accepts client connections at /ws. Handshake credentials arrive as
// query parameters; a missing identity or username rejects the upgrade with
// 401 before the connection is admitted.
type Server struct {
	reg *registry.Registry
	rtr *router.Router
	pub *presence.Publisher
}

func NewServer(reg *registry.Registry, rtr *router.Router, pub *presence.Publisher) *Server {
	return &Server{reg: reg, rtr: rtr, pub: pub}
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	profile, ok := profileFromRequest(r)
	if !ok {
		obslog.L().Warn("handshake_rejected", zap.String("remote", r.RemoteAddr))
		http.Error(w, "identity and username are required", http.StatusUnauthorized)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn := newConn(c)
	ctx := r.Context()

	// Baseline goes out before admission: registering fires a presence
	// recomputation, and the resulting diff must never precede the snapshot.
	_ = conn.Send(ctx, protocol.NewEvent(protocol.VerbPresenceState, protocol.PresenceState{Online: s.pub.Online()}))
	sess := s.reg.Register(profile, conn)

	s.readLoop(ctx, sess, conn, c)

	// Detach only if we are still the current connection; a reconnect may
	// already have replaced us. The disconnect notice fans out afterwards.
	if s.reg.MarkOffline(profile.ID, conn) {
		dctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		s.rtr.HandleDisconnect(dctx, profile.ID)
		cancel()
	}
	_ = conn.Close("session ended")
}

// readLoop processes frames in receipt order on this goroutine, which is
// what serializes handling per connection.
func (s *Server) readLoop(ctx context.Context, sess *registry.Session, conn *Conn, c *websocket.Conn) {
	identity := sess.ID()
	for {
		var env protocol.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			obslog.L().Debug("ws_read_end", zap.String("identity", identity), zap.Error(err))
			return
		}
		s.reg.Touch(identity)
		s.rtr.Dispatch(ctx, sess, &env)
	}
}

func profileFromRequest(r *http.Request) (protocol.Profile, bool) {
	q := r.URL.Query()
	p := protocol.Profile{
		ID:          strings.TrimSpace(q.Get("identity")),
		Username:    strings.TrimSpace(q.Get("username")),
		DisplayName: strings.TrimSpace(q.Get("displayName")),
		AvatarURL:   strings.TrimSpace(q.Get("avatarUrl")),
	}
	if p.ID == "" || p.Username == "" {
		return protocol.Profile{}, false
	}
	return p, true
}
