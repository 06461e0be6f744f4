package presence

import (
	"sync"

	"github.com/chys-app/chys-live/community-service/internal/metrics"
)

// Conn is a live connection that can take outbound events.
type Conn interface {
	ID() string
	// Send queues v for delivery and reports whether it was accepted.
	Send(v interface{}) bool
}

// Registry maps user ids to their current connection. One connection per user;
// the newest registration wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register makes conn the handle of userID and returns the one it replaced, if
// any. The replaced connection is left open.
func (r *Registry) Register(userID string, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.conns[userID]
	r.conns[userID] = conn
	metrics.ConnectedClients.Set(float64(len(r.conns)))
	return prev, ok
}

// Unregister removes userID. Absent users are a no-op.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, userID)
	metrics.ConnectedClients.Set(float64(len(r.conns)))
}

// UnregisterConn removes userID only while it still points at conn, so a late
// disconnect of a replaced connection keeps the newer one.
func (r *Registry) UnregisterConn(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.conns[userID]
	if !ok || cur.ID() != conn.ID() {
		return false
	}
	delete(r.conns, userID)
	metrics.ConnectedClients.Set(float64(len(r.conns)))
	return true
}

// Lookup returns the connection of userID; ok is false when the user is offline.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
