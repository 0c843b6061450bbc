// Package ws implements the WebSocket transport: upgrade, HELLO handshake,
// and the read/write goroutine pair that feeds the Message Router.
// Grounded on the teacher's internal/transport/http/ws_handler.go
// (gorilla/websocket upgrade, buffered send channel drained by a writer
// goroutine, a reader goroutine driving ReadJSON in a loop).
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ropequiz/internal/domain"
)

const writeWait = 10 * time.Second

// Connection adapts a gorilla/websocket.Conn to registry.Connection. Writes
// are serialized through a buffered channel drained by one writer goroutine
// per connection, since gorilla's Conn forbids concurrent writes (teacher's
// ws_handler.go comment: "verified via reasoning and tests to prevent
// concurrent writes").
type Connection struct {
	conn *websocket.Conn

	connID string
	userID string
	role   domain.Role

	mu     sync.RWMutex
	teamID *string

	send      chan domain.OutboundMessage
	closeOnce sync.Once
	closed    chan struct{}
}

func NewConnection(conn *websocket.Conn, connID, userID string, role domain.Role, teamID *string) *Connection {
	c := &Connection{
		conn:   conn,
		connID: connID,
		userID: userID,
		role:   role,
		teamID: teamID,
		send:   make(chan domain.OutboundMessage, 32),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) ConnectionID() string { return c.connID }
func (c *Connection) UserID() string       { return c.userID }
func (c *Connection) Role() domain.Role    { return c.role }

func (c *Connection) TeamID() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.teamID
}

func (c *Connection) SetTeamID(teamID *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teamID = teamID
}

// Send enqueues msg for the writer goroutine. It never blocks the caller
// (the engine's actor loop): a full buffer means a slow client, and the
// message is dropped rather than stalling the session for everyone else.
func (c *Connection) Send(msg domain.OutboundMessage) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return websocket.ErrCloseSent
	default:
		return websocket.ErrCloseSent
	}
}

func (c *Connection) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		deadline := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, deadline, time.Now().Add(writeWait))
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// ReadMessage reads the next inbound frame and returns its raw bytes
// undecoded, delegating framing to gorilla/websocket the way the teacher's
// ws_handler.go loop does.
func (c *Connection) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *Connection) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
