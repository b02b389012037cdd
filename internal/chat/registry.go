package chat

import "sync"

// Member is a live connection that can be addressed by the broadcaster.
type Member interface {
	ID() string
	Deliver(ev Event) error
}

// Registry tracks which members are currently joined to which room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Member // roomID -> connID -> member
	bound map[string]string            // connID -> roomID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]Member),
		bound: make(map[string]string),
	}
}

// Join adds m to the room. Joining the same room twice is a no-op; joining
// while bound to another room returns *AlreadyJoinedError.
func (r *Registry) Join(roomID string, m Member) error {
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.bound[id]; ok {
		if cur == roomID {
			return nil
		}
		return &AlreadyJoinedError{ConnID: id, Current: cur, Requested: roomID}
	}

	members := r.rooms[roomID]
	if members == nil {
		members = make(map[string]Member)
		r.rooms[roomID] = members
	}
	members[id] = m
	r.bound[id] = roomID
	return nil
}

// Leave removes m from the room. Missing members are ignored, disconnects race.
func (r *Registry) Leave(roomID string, m Member) {
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bound[id] != roomID {
		return
	}
	delete(r.bound, id)

	members := r.rooms[roomID]
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// Members returns a point-in-time copy of the room's members.
func (r *Registry) Members(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

// RoomOf returns the room a connection is bound to.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.bound[connID]
	return roomID, ok
}

// Stats returns the number of non-empty rooms and joined members.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.bound)
}
