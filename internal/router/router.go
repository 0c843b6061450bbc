// Package router implements the Message Router (spec §4 component table):
// it decodes inbound WebSocket frames, enforces the per-connection rate
// limit and role checks, and dispatches into the Session Engine's command
// API. Grounded on the teacher's ws_handler.go inbound switch
// (internal/transport/http/ws_handler.go), generalized from a single
// "answer" case to the full command set of spec §6, with role
// authorization added since the teacher's quiz has no teacher/student
// distinction.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"ropequiz/internal/broadcast"
	"ropequiz/internal/domain"
	"ropequiz/internal/engine"
	"ropequiz/internal/ratelimit"
	"ropequiz/internal/registry"
)

// Router dispatches decoded inbound frames into an Engine on behalf of one
// authenticated connection.
type Router struct {
	limiter     *ratelimit.Limiter
	reg         *registry.Registry
	broadcaster *broadcast.Broadcaster
	log         *slog.Logger
}

func New(limiter *ratelimit.Limiter, reg *registry.Registry, bc *broadcast.Broadcaster, log *slog.Logger) *Router {
	return &Router{limiter: limiter, reg: reg, broadcaster: bc, log: log}
}

// Dispatch decodes raw and executes it against eng on behalf of conn. It
// always returns an OutboundMessage to send back: ACK/PONG on success paths
// that need one, or an ErrorPayload-carrying ERROR message on any failure.
// Broadcasts triggered by the command itself are the engine's
// responsibility, not the router's.
func (r *Router) Dispatch(ctx context.Context, eng *engine.Engine, conn registry.Connection, raw []byte) *domain.OutboundMessage {
	if !r.limiter.Allow(conn.ConnectionID()) {
		return errorMessage(domain.CodeRateLimited, "", "rate limit exceeded")
	}

	var env domain.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errorMessage(domain.CodeInvalidMessage, "", "malformed message")
	}

	switch env.Type {
	case domain.MsgPing:
		return &domain.OutboundMessage{Type: domain.MsgPong}

	case domain.MsgJoinTeam:
		if err := eng.JoinTeam(ctx, conn.UserID(), env.TeamID); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgSubmitAnswer:
		if conn.Role() != domain.RoleStudent {
			return errorMessage(domain.CodeNotAuthorized, env.ClientMsgID, "only students submit answers")
		}
		if err := eng.SubmitAnswer(ctx, conn.UserID(), env.InstanceID, env.ChoiceID); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgTeacherNextQuestion:
		if err := r.requireTeacher(conn); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		if err := eng.TeacherNextQuestion(ctx); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgTeacherPause:
		if err := r.requireTeacher(conn); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		if err := eng.TeacherPause(ctx); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgTeacherResume:
		if err := r.requireTeacher(conn); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		if err := eng.TeacherResume(ctx); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgTeacherEndGame:
		if err := r.requireTeacher(conn); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		if err := eng.TeacherEndGame(ctx); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgTeacherManualAdjust:
		if err := r.requireTeacher(conn); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		if err := eng.TeacherManualAdjust(ctx, env.Delta, env.Reason, conn.UserID()); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		return ack(env.ClientMsgID)

	case domain.MsgTeacherKickPlayer:
		if err := r.requireTeacher(conn); err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		kicked, err := eng.KickPlayer(ctx, env.PlayerID, env.Reason)
		if err != nil {
			return errorFor(err, env.ClientMsgID)
		}
		r.notifyKicked(kicked.ID, env.Reason)
		return ack(env.ClientMsgID)

	default:
		return errorMessage(domain.CodeInvalidMessage, env.ClientMsgID, "unsupported message type")
	}
}

func (r *Router) requireTeacher(conn registry.Connection) error {
	if conn.Role() != domain.RoleTeacher {
		return domain.ErrNotAuthorized
	}
	return nil
}

// notifyKicked sends PLAYER_KICKED to the kicked student's live connection,
// if any, and closes it (spec §4.6, §6 close code POLICY_VIOLATION).
func (r *Router) notifyKicked(studentID, reason string) {
	conn, ok := r.reg.Get(studentID)
	if !ok {
		return
	}
	r.broadcaster.Send(conn, domain.OutboundMessage{
		Type:    domain.MsgPlayerKicked,
		Payload: domain.PlayerKickedPayload{StudentID: studentID, Reason: reason},
	})
	if err := conn.Close(domain.ClosePolicyViolation, "kicked"); err != nil {
		r.log.Warn("close kicked connection failed", "student_id", studentID, "err", err)
	}
}

func ack(clientMsgID string) *domain.OutboundMessage {
	return &domain.OutboundMessage{Type: domain.MsgAck, RequestID: clientMsgID}
}

func errorFor(err error, clientMsgID string) *domain.OutboundMessage {
	return errorMessage(domain.CodeForError(err), clientMsgID, err.Error())
}

func errorMessage(code domain.ErrorCode, clientMsgID, message string) *domain.OutboundMessage {
	return &domain.OutboundMessage{
		Type: domain.MsgError,
		Payload: domain.ErrorPayload{
			Code:        code,
			Message:     message,
			ClientMsgID: clientMsgID,
		},
	}
}
