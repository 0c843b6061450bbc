package broadcast_test

import (
	"log/slog"
	"testing"

	"ropequiz/internal/broadcast"
	"ropequiz/internal/domain"
	"ropequiz/internal/registry"
)

type recordingConn struct {
	id       string
	userID   string
	role     domain.Role
	received []domain.OutboundMessage
}

func (c *recordingConn) ConnectionID() string { return c.id }
func (c *recordingConn) UserID() string       { return c.userID }
func (c *recordingConn) Role() domain.Role    { return c.role }
func (c *recordingConn) TeamID() *string      { return nil }
func (c *recordingConn) Send(msg domain.OutboundMessage) error {
	c.received = append(c.received, msg)
	return nil
}
func (c *recordingConn) Close(int, string) error { return nil }

func TestBroadcastAllReachesEveryone(t *testing.T) {
	reg := registry.New()
	a := &recordingConn{id: "a", userID: "a", role: domain.RoleStudent}
	c := &recordingConn{id: "c", userID: "c", role: domain.RoleTeacher}
	reg.Register(a)
	reg.Register(c)

	b := broadcast.New(reg, slog.Default())
	b.BroadcastAll(domain.OutboundMessage{Type: domain.MsgPhaseChange})

	if len(a.received) != 1 || len(c.received) != 1 {
		t.Fatalf("expected both connections to receive the broadcast")
	}
}

func TestSendToUserMissingIsNoop(t *testing.T) {
	reg := registry.New()
	b := broadcast.New(reg, slog.Default())
	b.SendToUser("ghost", domain.OutboundMessage{Type: domain.MsgPong})
}
