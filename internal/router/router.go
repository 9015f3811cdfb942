package router

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/park285/chess-arena/internal/challenge"
	"github.com/park285/chess-arena/internal/game"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/protocol"
	"go.uber.org/zap"
)

// Router is the single demultiplexing entry point: it decodes a tagged
// envelope, invokes the matching manager operation, and reports failures
// only to the original caller as a correlated error envelope.
//
// Dispatch runs on the calling connection's read goroutine, so messages from
// one connection are handled in receipt order; cross-connection mutations
// are serialized by the managers' per-map locks.
type Router struct {
	challenges *challenge.Manager
	games      *game.Manager
}

func New(challenges *challenge.Manager, games *game.Manager) *Router {
	return &Router{challenges: challenges, games: games}
}

// Dispatch handles one inbound envelope from sess.
func (r *Router) Dispatch(ctx context.Context, sess *registry.Session, env *protocol.Envelope) {
	switch env.Verb {
	case protocol.VerbPing:
		r.reply(ctx, sess, protocol.VerbPong, env.CID, nil)

	case protocol.VerbChallengeSend:
		var req protocol.ChallengeSendRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		ch, err := r.challenges.Create(ctx, sess.ID(), req.ChallengedID)
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbChallengeSent, env.CID, ch.Notice(challenge.StatusPending))

	case protocol.VerbChallengeAccept:
		var req protocol.ChallengeActRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		gameID, _, err := r.challenges.Accept(ctx, req.ChallengeID, sess.ID())
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		notice, err := r.games.StartedFor(gameID, sess.ID())
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbGameStarted, env.CID, notice)

	case protocol.VerbChallengeDecline:
		var req protocol.ChallengeActRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		ch, err := r.challenges.Decline(ctx, req.ChallengeID, sess.ID())
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbChallengeDeclined, env.CID, ch.Notice(challenge.StatusDeclined))

	case protocol.VerbChallengeCancel:
		var req protocol.ChallengeActRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		ch, err := r.challenges.Cancel(ctx, req.ChallengeID, sess.ID())
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbChallengeCancelled, env.CID, ch.Notice(challenge.StatusCancelled))

	case protocol.VerbJoinRoom:
		var req protocol.JoinRoomRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		snap, err := r.games.Join(ctx, req.GameID, sess)
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbGameJoined, env.CID, snap)

	case protocol.VerbMakeMove:
		var req protocol.MakeMoveRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		snap, err := r.games.MakeMove(ctx, req.GameID, sess.ID(), req.Move, req.Result)
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbGameUpdate, env.CID, snap)

	case protocol.VerbSendMessage:
		var req protocol.SendMessageRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		msg, err := r.games.SendMessage(ctx, req.GameID, sess.ID(), req.Content)
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbNewMessage, env.CID, msg)

	case protocol.VerbResignGame:
		var req protocol.ResignRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		snap, err := r.games.Resign(ctx, req.GameID, sess.ID())
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbGameUpdate, env.CID, snap)

	case protocol.VerbOfferDraw:
		var req protocol.OfferDrawRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		snap, err := r.games.OfferDraw(ctx, req.GameID, sess.ID())
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbOfferDraw, env.CID, snap)

	case protocol.VerbRespondDraw:
		var req protocol.RespondDrawRequest
		if !r.decode(ctx, sess, env, &req) {
			return
		}
		snap, err := r.games.RespondDraw(ctx, req.GameID, sess.ID(), req.Accept)
		if err != nil {
			r.fail(ctx, sess, env.CID, err)
			return
		}
		r.reply(ctx, sess, protocol.VerbGameUpdate, env.CID, snap)

	default:
		obslog.L().Warn("router_unknown_verb", zap.String("verb", env.Verb), zap.String("identity", sess.ID()))
		r.sendError(ctx, sess, env.CID, protocol.CodeBadRequest, "unknown verb: "+env.Verb)
	}
}

// HandleDisconnect fans a best-effort disconnect notice out to the rooms the
// identity participates in.
func (r *Router) HandleDisconnect(ctx context.Context, identity string) {
	r.games.NotifyDisconnect(ctx, identity)
}

func (r *Router) decode(ctx context.Context, sess *registry.Session, env *protocol.Envelope, into any) bool {
	if len(env.Payload) == 0 {
		r.sendError(ctx, sess, env.CID, protocol.CodeBadRequest, "missing payload")
		return false
	}
	if err := json.Unmarshal(env.Payload, into); err != nil {
		r.sendError(ctx, sess, env.CID, protocol.CodeBadRequest, "malformed payload")
		return false
	}
	return true
}

func (r *Router) reply(ctx context.Context, sess *registry.Session, verb, cid string, payload any) {
	if err := sess.Send(ctx, protocol.NewReply(verb, cid, payload)); err != nil {
		obslog.L().Debug("router_reply_dropped", zap.String("identity", sess.ID()), zap.String("verb", verb), zap.Error(err))
	}
}

func (r *Router) fail(ctx context.Context, sess *registry.Session, cid string, err error) {
	r.sendError(ctx, sess, cid, codeFor(err), err.Error())
}

func (r *Router) sendError(ctx context.Context, sess *registry.Session, cid string, code protocol.ErrorCode, msg string) {
	env := protocol.NewReply(protocol.VerbError, cid, protocol.ErrorPayload{Code: code, Message: msg})
	_ = sess.Send(ctx, env)
}

// codeFor translates manager sentinels into the wire error taxonomy.
func codeFor(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, challenge.ErrNotFound), errors.Is(err, game.ErrNotFound):
		return protocol.CodeNotFound
	case errors.Is(err, challenge.ErrNotAuthorized), errors.Is(err, game.ErrNotParticipant):
		return protocol.CodeUnauthorized
	case errors.Is(err, challenge.ErrTargetUnreachable), errors.Is(err, registry.ErrNotConnected):
		return protocol.CodeUnreachable
	case errors.Is(err, challenge.ErrTargetBusy),
		errors.Is(err, challenge.ErrChallengerBusy),
		errors.Is(err, challenge.ErrAlreadyPending),
		errors.Is(err, challenge.ErrSelfChallenge),
		errors.Is(err, game.ErrGameInactive),
		errors.Is(err, game.ErrWrongTurn),
		errors.Is(err, game.ErrIllegalMove),
		errors.Is(err, game.ErrDrawAlreadyOffered),
		errors.Is(err, game.ErrNoDrawOffer),
		errors.Is(err, game.ErrOwnDrawOffer),
		errors.Is(err, game.ErrTooManyGames):
		return protocol.CodeState
	default:
		return protocol.CodeBadRequest
	}
}
