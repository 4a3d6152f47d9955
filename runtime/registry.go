package runtime

import (
	"chat-signal/contract"
	"chat-signal/domain"
	"sync"

	"github.com/samber/lo"
)

// Set holds the live sinks of one room, keyed by connection.
type Set map[domain.ConnectionID]contract.EventSink

// Registry is the room directory: which connections are in which room.
// A connection lives in exactly one room and a room exists only while it has
// at least one member.
type Registry struct {
	mu          sync.RWMutex
	roomMembers map[domain.RoomID]Set
}

func NewRegistry() *Registry {
	return &Registry{roomMembers: make(map[domain.RoomID]Set)}
}

// Join adds the sink to the room, creating the room on first join.
// Joining twice with the same connection id replaces the previous sink.
func (r *Registry) Join(roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		members = make(Set)
		r.roomMembers[roomID] = members
	}
	members[sink.Participant().ConnectionID] = sink
}

// Leave removes the sink from the room. It is idempotent, leaving twice or
// leaving an unknown room is a no-op.
func (r *Registry) Leave(roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return
	}
	delete(members, sink.Participant().ConnectionID)

	// If no one is left in the room, remove the room entry entirely
	if len(members) == 0 {
		delete(r.roomMembers, roomID)
	}
}

// Members returns a snapshot of the room. Callers may iterate it without
// holding any lock, later joins and leaves don't affect it.
// Returns nil if the room doesn't exist.
func (r *Registry) Members(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	return lo.Values(members)
}

func (r *Registry) Size() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms = len(r.roomMembers)
	for _, members := range r.roomMembers {
		connections += len(members)
	}
	return rooms, connections
}
