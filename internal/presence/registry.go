// Package presence tracks which connections belong to which users and
// rooms for the lifetime of the process. Nothing here is persisted.
package presence

import "sync"

// ConnID is an opaque per-socket handle, created on connect and
// invalidated on disconnect.
type ConnID string

// Registry maps connection identity, user identity and room membership.
// Lookups in every direction are O(1); there is no linear scanning.
type Registry struct {
	mu        sync.RWMutex
	userConn  map[int64]ConnID
	connUser  map[ConnID]int64
	connRoom  map[ConnID]int64
	roomConns map[int64]map[ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		userConn:  make(map[int64]ConnID),
		connUser:  make(map[ConnID]int64),
		connRoom:  make(map[ConnID]int64),
		roomConns: make(map[int64]map[ConnID]struct{}),
	}
}

// RegisterConnection binds a user to a connection. A user has at most one
// active connection; a new connect overwrites the prior mapping and prunes
// the stale handle's entries (last writer wins, supports reconnection).
func (r *Registry) RegisterConnection(userID int64, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.userConn[userID]; ok && old != conn {
		r.dropConnLocked(old)
	}
	r.userConn[userID] = conn
	r.connUser[conn] = userID
}

// ResolveUser returns the user bound to the connection.
func (r *Registry) ResolveUser(conn ConnID) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.connUser[conn]
	return uid, ok
}

// ResolveConn returns the active connection for a user, if any.
func (r *Registry) ResolveConn(userID int64) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.userConn[userID]
	return c, ok
}

// ResolveRoom returns the room whose broadcast group the connection has
// joined. A connection belongs to at most one room at a time.
func (r *Registry) ResolveRoom(conn ConnID) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rid, ok := r.connRoom[conn]
	return rid, ok
}

// JoinRoomGroup adds the connection to the room's group. Idempotent. If
// the connection was in another room it is moved.
func (r *Registry) JoinRoomGroup(roomID int64, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.connRoom[conn]; ok && prev != roomID {
		r.leaveRoomLocked(prev, conn)
	}
	r.connRoom[conn] = roomID
	set, ok := r.roomConns[roomID]
	if !ok {
		set = make(map[ConnID]struct{})
		r.roomConns[roomID] = set
	}
	set[conn] = struct{}{}
}

// LeaveRoomGroup removes the connection from the room's group. Idempotent;
// removing the last member deletes the room's entry entirely.
func (r *Registry) LeaveRoomGroup(roomID int64, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(roomID, conn)
}

// RoomConns returns the connections currently in the room's group.
func (r *Registry) RoomConns(roomID int64) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.roomConns[roomID]
	out := make([]ConnID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Unregister removes the user mapping and any room-group membership for
// the connection, returning what was resolved so the caller can run
// disconnect side effects exactly once. ok is false when the handle was
// already gone (e.g. replaced by a reconnect).
func (r *Registry) Unregister(conn ConnID) (userID, roomID int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok = r.connUser[conn]
	if !ok {
		return 0, 0, false
	}
	roomID = r.connRoom[conn]
	r.dropConnLocked(conn)
	return userID, roomID, true
}

func (r *Registry) dropConnLocked(conn ConnID) {
	if uid, ok := r.connUser[conn]; ok {
		if r.userConn[uid] == conn {
			delete(r.userConn, uid)
		}
		delete(r.connUser, conn)
	}
	if rid, ok := r.connRoom[conn]; ok {
		r.leaveRoomLocked(rid, conn)
	}
}

func (r *Registry) leaveRoomLocked(roomID int64, conn ConnID) {
	if set, ok := r.roomConns[roomID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.roomConns, roomID)
		}
	}
	if r.connRoom[conn] == roomID {
		delete(r.connRoom, conn)
	}
}
