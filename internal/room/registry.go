package room

import "sync"

// Role is the position a connection holds within a room
type Role string

const (
	RoleMentor  Role = "mentor"
	RoleStudent Role = "student"
)

// Snapshot is a read-only view of a room used for count broadcasts
type Snapshot struct {
	Mentor       string
	StudentCount int
}

// Departure describes what removing a connection from a room changed
type Departure struct {
	RoomID    string
	WasMember bool
	WasMentor bool
	Empty     bool
}

type state struct {
	mentor  string
	members map[string]struct{}
}

// Registry is the authoritative membership map: which connections are in
// which room and who holds the mentor slot. Every mutation happens under
// one lock, so role decisions never depend on the transport's view of
// who is connected.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*state
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*state),
	}
}

// Join adds connID to the room, creating the room if needed. The first
// connection to register against a room id takes the mentor slot; so does
// a join that finds the slot empty (mentor departed, room not yet purged).
// Everyone else is a student. The check and the mutation are one atomic
// step.
func (r *Registry) Join(roomID, connID string) Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.rooms[roomID]
	if !ok {
		st = &state{members: make(map[string]struct{})}
		r.rooms[roomID] = st
	}
	st.members[connID] = struct{}{}

	if st.mentor == "" {
		st.mentor = connID
		return RoleMentor
	}
	return RoleStudent
}

// Leave removes connID from the room. Leaving a room the connection is not
// a member of is a no-op. Rooms are deleted the moment they empty.
func (r *Registry) Leave(roomID, connID string) Departure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(roomID, connID)
}

func (r *Registry) leaveLocked(roomID, connID string) Departure {
	dep := Departure{RoomID: roomID}

	st, ok := r.rooms[roomID]
	if !ok {
		return dep
	}
	if _, ok := st.members[connID]; !ok {
		return dep
	}

	dep.WasMember = true
	delete(st.members, connID)

	if st.mentor == connID {
		st.mentor = ""
		dep.WasMentor = true
	}
	if len(st.members) == 0 {
		delete(r.rooms, roomID)
		dep.Empty = true
	}
	return dep
}

// DisconnectAll removes connID from every room it belongs to. A connection
// holds at most one membership, but the operation is safe to call
// unconditionally.
func (r *Registry) DisconnectAll(connID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deps []Departure
	for roomID, st := range r.rooms {
		if _, ok := st.members[connID]; ok {
			deps = append(deps, r.leaveLocked(roomID, connID))
		}
	}
	return deps
}

// Snapshot reports the mentor and student count of a room. The second
// return value is false if the room does not exist.
func (r *Registry) Snapshot(roomID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{Mentor: st.mentor, StudentCount: len(st.members)}
	if st.mentor != "" {
		snap.StudentCount--
	}
	return snap, true
}

// Purge deletes a room regardless of remaining membership. Purging an
// absent room is a no-op.
func (r *Registry) Purge(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
