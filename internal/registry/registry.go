// Package registry implements the per-session Connection Registry (spec
// §4 Storage Adapter table row, component responsibility: "Tracks all live
// client connections bound to this session, their authenticated identity
// and role"). Adapted from the global registry in vtphan-switchboard's
// internal/websocket/registry.go, narrowed to a single session's scope
// since each Session Engine owns exactly one registry instance.
package registry

import (
	"sync"

	"ropequiz/internal/domain"
)

// Connection is the narrow contract the registry and broadcaster need from
// a live client connection; the transport layer supplies the concrete
// gorilla/websocket-backed implementation.
type Connection interface {
	ConnectionID() string
	UserID() string
	Role() domain.Role
	TeamID() *string
	Send(domain.OutboundMessage) error
	Close(code int, reason string) error
}

// Registry tracks every live connection bound to one session.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]Connection
	teachers map[string]Connection
	students map[string]Connection
}

func New() *Registry {
	return &Registry{
		byUser:   make(map[string]Connection),
		teachers: make(map[string]Connection),
		students: make(map[string]Connection),
	}
}

// Register adds conn, replacing and asynchronously closing any existing
// connection for the same user (reconnect supersedes the stale socket).
func (r *Registry) Register(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.UserID()
	if existing, ok := r.byUser[userID]; ok && existing != conn {
		go existing.Close(domain.CloseNormal, "superseded by reconnect")
	}

	r.byUser[userID] = conn
	switch conn.Role() {
	case domain.RoleTeacher:
		r.teachers[userID] = conn
	case domain.RoleStudent:
		r.students[userID] = conn
	}
}

// Unregister removes conn only if it is still the one currently registered
// for its user, so a stale close from a superseded connection cannot evict
// the connection that replaced it.
func (r *Registry) Unregister(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.UserID()
	current, ok := r.byUser[userID]
	if !ok || current != conn {
		return
	}
	delete(r.byUser, userID)
	delete(r.teachers, userID)
	delete(r.students, userID)
}

// Get returns the live connection for a user, if any.
func (r *Registry) Get(userID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// All returns every live connection in the session.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	return out
}

// Students returns every live student connection.
func (r *Registry) Students() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.students))
	for _, c := range r.students {
		out = append(out, c)
	}
	return out
}

// Teachers returns every live teacher connection.
func (r *Registry) Teachers() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.teachers))
	for _, c := range r.teachers {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections, used for the ROSTER_UPDATE
// totalPlayers field.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
