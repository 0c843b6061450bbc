// Package broadcast implements the Broadcaster component (spec §4.7): a
// fan-out writer over the Connection Registry that sends one payload to
// every connection unchanged, plus targeted single-connection sends (role
// projection happens in the STATE_SNAPSHOT payload, see BroadcastAll). The drop-slow-clients
// discipline follows the teacher's Session.broadcastLocked in
// internal/app/quiz_service.go and stadtaev-playpery's Broker.Publish; the
// role-projection split (teacher vs student) generalizes elsa's flat
// broadcast into the two-view model spec §4.7 and §9 require.
package broadcast

import (
	"log/slog"

	"ropequiz/internal/domain"
	"ropequiz/internal/registry"
)

// Broadcaster fans events out to a session's live connections.
type Broadcaster struct {
	reg *registry.Registry
	log *slog.Logger
}

func New(reg *registry.Registry, log *slog.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: log}
}

// Send delivers msg to a single connection; used for WELCOME,
// STATE_SNAPSHOT, ANSWER_RESULT, and ERROR (spec §4.7).
func (b *Broadcaster) Send(conn registry.Connection, msg domain.OutboundMessage) {
	if err := conn.Send(msg); err != nil {
		b.log.Warn("send failed", "connection", conn.ConnectionID(), "type", msg.Type, "err", err)
	}
}

// SendToUser looks up userID in the registry and delivers msg if connected.
func (b *Broadcaster) SendToUser(userID string, msg domain.OutboundMessage) {
	conn, ok := b.reg.Get(userID)
	if !ok {
		return
	}
	b.Send(conn, msg)
}

// BroadcastAll delivers the same msg to every live connection, once each.
// The wire shapes in spec §6 (QUESTION, QUESTION_REVEAL, ROSTER_UPDATE,
// PHASE_CHANGE, TUG_UPDATE, GAME_END) carry no role-dependent field, so
// fan-out never needs to vary payload by recipient; only the per-connection
// STATE_SNAPSHOT projection does (spec §4.7), and that is always a targeted
// Send built from TeacherView/StudentView, never a broadcast.
func (b *Broadcaster) BroadcastAll(msg domain.OutboundMessage) {
	for _, conn := range b.reg.All() {
		b.Send(conn, msg)
	}
}
