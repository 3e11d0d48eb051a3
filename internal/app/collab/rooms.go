package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taskflow/internal/app/user"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
)

// membership is the room a connection currently belongs to and the identity it joined with.
type membership struct {
	roomID   string
	identity user.Identity
}

// Rooms maintains project room membership. A connection belongs to at most one room.
//
// A single mutex guards every room: the number of live project rooms per process is small
// and critical sections only touch maps. Broadcasts snapshot the member set under the lock
// and deliver after releasing it.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[ConnID]struct{}
	active map[ConnID]membership

	registry *Registry
	out      *fanout
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRooms returns a Rooms delivering through registry. onSendFailure, when set, is
// called for every member whose send fails.
func NewRooms(registry *Registry, onSendFailure func(ConnID)) *Rooms {
	return &Rooms{
		rooms:    make(map[string]map[ConnID]struct{}),
		active:   make(map[ConnID]membership),
		registry: registry,
		out:      &fanout{registry: registry, onFailure: onSendFailure},
		now:      time.Now,
		logger:   logx.Component("rooms"),
	}
}

// Join moves id into roomID. A connection already in another room leaves it first, which
// notifies that room. Joining the current room again does nothing. The joined room is
// notified with user_joined_project, excluding id. The connection must be authenticated.
func (r *Rooms) Join(id ConnID, roomID string) error {
	identity, ok := r.registry.IdentityOf(id)
	if !ok {
		return errs.NewError(errs.ErrUnauthenticated)
	}

	r.mu.Lock()

	// Re-checked under the room lock so a concurrent teardown cannot leave a dead
	// connection enrolled: teardown unbinds before it evicts.
	if !r.registry.Has(id) {
		r.mu.Unlock()
		return errs.NewError(errs.ErrConnectionNotFound)
	}

	current, inRoom := r.active[id]
	if inRoom && current.roomID == roomID {
		r.mu.Unlock()
		return nil
	}

	if inRoom {
		r.removeLocked(id, current.roomID)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[roomID] = members
	}
	members[id] = struct{}{}
	r.active[id] = membership{roomID: roomID, identity: identity}
	size := len(members)

	r.mu.Unlock()

	if inRoom {
		r.logger.Info().Str("conn_id", string(id)).Str("room_id", current.roomID).Msg("Connection left room to switch projects")
		r.Broadcast(current.roomID, r.presence(EvUserLeftProject, current.roomID, current.identity), id)
	}

	r.logger.Info().
		Str("conn_id", string(id)).
		Str("user_id", identity.ID).
		Str("room_id", roomID).
		Int("members", size).
		Msg("Connection joined room")

	r.Broadcast(roomID, r.presence(EvUserJoinedProject, roomID, identity), id)

	return nil
}

// Leave removes id from roomID and notifies the room with user_left_project. It is a no-op
// when id is not in roomID. It reports whether membership changed.
func (r *Rooms) Leave(id ConnID, roomID string) bool {
	r.mu.Lock()

	current, ok := r.active[id]
	if !ok || current.roomID != roomID {
		r.mu.Unlock()
		return false
	}

	r.removeLocked(id, roomID)
	r.mu.Unlock()

	r.logger.Info().Str("conn_id", string(id)).Str("room_id", roomID).Msg("Connection left room")
	r.Broadcast(roomID, r.presence(EvUserLeftProject, roomID, current.identity), id)

	return true
}

// Evict removes id from whatever room it is in and notifies that room with
// user_disconnected. It returns the room left, if any. Repeated calls are no-ops.
func (r *Rooms) Evict(id ConnID) (string, bool) {
	r.mu.Lock()

	current, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return "", false
	}

	r.removeLocked(id, current.roomID)
	r.mu.Unlock()

	r.Broadcast(current.roomID, r.presence(EvUserDisconnected, current.roomID, current.identity), id)

	return current.roomID, true
}

// removeLocked drops id from roomID and deletes the room once empty. r.mu must be held.
func (r *Rooms) removeLocked(id ConnID, roomID string) {
	delete(r.active, id)

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}

	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// Broadcast delivers ev to every member of roomID except exclude (pass "" to exclude
// nobody). Members are snapshotted under the lock; delivery happens after it is released.
// It returns the number of members the event was queued for.
func (r *Rooms) Broadcast(roomID string, ev Event, exclude ConnID) int {
	frame, err := ev.Encode()
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to encode broadcast event")
		return 0
	}

	return r.broadcastFrame(roomID, frame, exclude)
}

func (r *Rooms) broadcastFrame(roomID string, frame []byte, exclude ConnID) int {
	targets := r.MembersOf(roomID)

	delivered := 0
	for _, id := range targets {
		if id == exclude {
			continue
		}
		if r.out.deliver(id, frame) {
			delivered++
		}
	}

	return delivered
}

// MembersOf returns a snapshot of the connections in roomID, sorted.
func (r *Rooms) MembersOf(roomID string) []ConnID {
	r.mu.RLock()
	members := r.rooms[roomID]
	out := make([]ConnID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// RoomOf returns the room id is currently in.
func (r *Rooms) RoomOf(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current, ok := r.active[id]
	return current.roomID, ok
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *Rooms) presence(t EventType, roomID string, identity user.Identity) Event {
	return Event{
		Type: t,
		Payload: PresencePayload{
			UserID:    identity.ID,
			User:      identity,
			ProjectID: roomID,
			Timestamp: r.now(),
		},
	}
}
