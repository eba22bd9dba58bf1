// Package registry maintains the one-active-connection-per-user directory.
//
// The registry is created once at process start and torn down at process
// stop; it is injected into the components that deliver events, never reached
// as ambient state. Sends are best-effort: a failed send marks the connection
// dead and unregisters it, and callers do not retry.
package registry

import (
	"log"
	"sync"
)

// CloseReasonReplaced is passed to a connection displaced by a newer one for
// the same user.
const CloseReasonReplaced = "replaced"

// Conn is one live client channel. Implementations must be comparable so the
// registry can verify reverse-map identity.
type Conn interface {
	// Send queues a payload for delivery. It returns an error when the
	// connection can no longer deliver.
	Send(payload []byte) error
	// Close tears the connection down with an operator-readable reason.
	// It must be safe to call more than once.
	Close(reason string)
}

// Registry maps user ids to live connections and back. The two maps are
// always updated together under one lock so they stay race-consistent.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]Conn
	byConn map[Conn]int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[int64]Conn),
		byConn: make(map[Conn]int64),
	}
}

// Register installs the connection for a user. An existing live connection on
// a different channel is force-closed with the replaced reason before the new
// one takes over; the close itself happens after the lock is released so a
// slow close cannot stall registration.
func (r *Registry) Register(userID int64, conn Conn) {
	var displaced Conn

	r.mu.Lock()
	if old, ok := r.byUser[userID]; ok && old != conn {
		delete(r.byConn, old)
		displaced = old
	}
	r.byUser[userID] = conn
	r.byConn[conn] = userID
	r.mu.Unlock()

	if displaced != nil {
		log.Printf("connection replaced user_id=%d", userID)
		displaced.Close(CloseReasonReplaced)
	}
}

// UnregisterUser removes the user's connection if one is present.
func (r *Registry) UnregisterUser(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.byUser[userID]; ok {
		delete(r.byUser, userID)
		delete(r.byConn, conn)
	}
}

// UnregisterConn removes the mapping only while the reverse map still points
// at this exact connection. A stale close arriving after a replacement must
// not evict the newer connection.
func (r *Registry) UnregisterConn(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[conn]
	if !ok {
		return
	}
	if current, live := r.byUser[userID]; live && current == conn {
		delete(r.byUser, userID)
	}
	delete(r.byConn, conn)
}

// SendToUser delivers a payload to the user's live connection. A failed send
// unregisters the connection and reports false; callers do not retry.
func (r *Registry) SendToUser(userID int64, payload []byte) bool {
	r.mu.RLock()
	conn, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := conn.Send(payload); err != nil {
		log.Printf("send failed, dropping connection user_id=%d err=%v", userID, err)
		r.UnregisterConn(conn)
		return false
	}
	return true
}

// SendToSet fans a payload out to each id independently. One recipient's
// failure never blocks delivery to the others. It returns the number of
// successful deliveries.
func (r *Registry) SendToSet(userIDs []int64, payload []byte) int {
	delivered := 0
	for _, userID := range userIDs {
		if r.SendToUser(userID, payload) {
			delivered++
		}
	}
	return delivered
}

// Connected reports whether a user currently has a live connection.
func (r *Registry) Connected(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// CloseAll tears down every connection with the given reason. Used during
// process shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.byConn))
	for conn := range r.byConn {
		conns = append(conns, conn)
	}
	r.byUser = make(map[int64]Conn)
	r.byConn = make(map[Conn]int64)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(reason)
	}
}
