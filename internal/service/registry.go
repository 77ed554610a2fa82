package service

import (
	"context"
	"sync"
)

// Conn is a live realtime connection that can be pushed events
type Conn interface {
	ID() string
	Send(ctx context.Context, event string, payload interface{}) error
}

// Registry maps an authenticated user to their live connection. A user has
// at most one entry; a newer connection replaces the older one.
type Registry interface {
	Register(userID string, conn Conn) (replaced Conn)
	Lookup(userID string) (Conn, bool)
	Deregister(userID string)
	DeregisterConnection(userID, connID string) bool
	Count() int
}

// ConnectionRegistry is the in-memory Registry shared by the gateway and the
// delivery path
type ConnectionRegistry struct {
	conns map[string]Conn // userID -> connection
	mu    sync.RWMutex
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]Conn),
	}
}

// Register stores conn for userID and returns the connection it displaced, if any
func (r *ConnectionRegistry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[userID]
	r.conns[userID] = conn
	if prev == conn {
		return nil
	}
	return prev
}

func (r *ConnectionRegistry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Deregister removes userID; unknown users are ignored
func (r *ConnectionRegistry) Deregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, userID)
}

// DeregisterConnection removes userID only while it still maps to connID, so
// the close of a replaced connection cannot evict its successor
func (r *ConnectionRegistry) DeregisterConnection(userID, connID string) bool {
	if userID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[userID]
	if !ok || conn.ID() != connID {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// OnlineUserIDs returns the users with a live connection, in no particular order
func (r *ConnectionRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}
