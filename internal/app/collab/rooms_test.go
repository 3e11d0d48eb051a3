package collab

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/app/user"
	"taskflow/internal/pkg/errs"
)

type roomsFixture struct {
	registry *Registry
	rooms    *Rooms
	senders  map[ConnID]*fakeSender
	failed   []ConnID
	mu       sync.Mutex
}

func newRoomsFixture(t *testing.T, conns map[ConnID]string) *roomsFixture {
	t.Helper()

	f := &roomsFixture{
		registry: NewRegistry(),
		senders:  make(map[ConnID]*fakeSender),
	}
	f.rooms = NewRooms(f.registry, func(id ConnID) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.failed = append(f.failed, id)
	})

	for id, userID := range conns {
		s := &fakeSender{}
		f.senders[id] = s
		f.registry.Add(id, s, nil)
		if userID != "" {
			require.NoError(t, f.registry.Bind(id, user.Identity{ID: userID, DisplayName: userID, IsActive: true}))
		}
	}

	return f
}

func (f *roomsFixture) resetAll() {
	for _, s := range f.senders {
		s.reset()
	}
}

func TestRooms_JoinRequiresAuthentication(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"anon": ""})

	err := f.rooms.Join("anon", "P1")
	assert.True(t, errs.HasCode(err, errs.ErrUnauthenticated))
	assert.Empty(t, f.rooms.MembersOf("P1"))
	assert.Equal(t, 0, f.rooms.Count())
}

func TestRooms_JoinNotifiesOthersOnly(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob"})

	require.NoError(t, f.rooms.Join("a", "P1"))
	assert.Empty(t, f.senders["a"].received(t))

	require.NoError(t, f.rooms.Join("b", "P1"))

	assert.Equal(t, []EventType{EvUserJoinedProject}, f.senders["a"].types(t))
	assert.Empty(t, f.senders["b"].received(t))

	fields := payloadFields(t, f.senders["a"].received(t)[0])
	assert.JSONEq(t, `"bob"`, string(fields["userId"]))
	assert.JSONEq(t, `"P1"`, string(fields["projectId"]))
	assert.Contains(t, fields, "user")
	assert.Contains(t, fields, "timestamp")

	assert.Equal(t, []ConnID{"a", "b"}, f.rooms.MembersOf("P1"))
}

func TestRooms_JoinSameRoomIsIdempotent(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob"})

	require.NoError(t, f.rooms.Join("a", "P1"))
	require.NoError(t, f.rooms.Join("b", "P1"))
	f.resetAll()

	require.NoError(t, f.rooms.Join("b", "P1"))

	assert.Empty(t, f.senders["a"].received(t))
	assert.Equal(t, []ConnID{"a", "b"}, f.rooms.MembersOf("P1"))
}

func TestRooms_SwitchingRoomsLeavesPreviousFirst(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob", "c": "carol"})

	require.NoError(t, f.rooms.Join("a", "A"))
	require.NoError(t, f.rooms.Join("b", "B"))
	require.NoError(t, f.rooms.Join("c", "A"))
	f.resetAll()

	require.NoError(t, f.rooms.Join("c", "B"))

	assert.Equal(t, []EventType{EvUserLeftProject}, f.senders["a"].types(t))
	assert.Equal(t, []EventType{EvUserJoinedProject}, f.senders["b"].types(t))
	assert.Empty(t, f.senders["c"].received(t))

	assert.Equal(t, []ConnID{"a"}, f.rooms.MembersOf("A"))
	assert.Equal(t, []ConnID{"b", "c"}, f.rooms.MembersOf("B"))

	room, ok := f.rooms.RoomOf("c")
	require.True(t, ok)
	assert.Equal(t, "B", room)
}

func TestRooms_LeaveIsNoOpWhenNotMember(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob"})

	require.NoError(t, f.rooms.Join("a", "P1"))
	f.resetAll()

	assert.False(t, f.rooms.Leave("b", "P1"))
	assert.False(t, f.rooms.Leave("a", "P2"))
	assert.Empty(t, f.senders["a"].received(t))
	assert.Equal(t, []ConnID{"a"}, f.rooms.MembersOf("P1"))
}

func TestRooms_LeaveNotifiesAndDeletesEmptyRoom(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob"})

	require.NoError(t, f.rooms.Join("a", "P1"))
	require.NoError(t, f.rooms.Join("b", "P1"))
	f.resetAll()

	require.True(t, f.rooms.Leave("b", "P1"))
	assert.Equal(t, []EventType{EvUserLeftProject}, f.senders["a"].types(t))
	assert.Empty(t, f.senders["b"].received(t))

	_, ok := f.rooms.RoomOf("b")
	assert.False(t, ok)

	require.True(t, f.rooms.Leave("a", "P1"))
	assert.Equal(t, 0, f.rooms.Count())
}

func TestRooms_EvictIsIdempotent(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob"})

	require.NoError(t, f.rooms.Join("a", "P1"))
	require.NoError(t, f.rooms.Join("b", "P1"))
	f.resetAll()

	room, ok := f.rooms.Evict("b")
	require.True(t, ok)
	assert.Equal(t, "P1", room)

	_, ok = f.rooms.Evict("b")
	assert.False(t, ok)

	assert.Equal(t, []EventType{EvUserDisconnected}, f.senders["a"].types(t))
}

func TestRooms_BroadcastExcludesSender(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob", "c": "carol", "x": "dave"})

	for _, id := range []ConnID{"a", "b", "c"} {
		require.NoError(t, f.rooms.Join(id, "P1"))
	}
	require.NoError(t, f.rooms.Join("x", "P2"))
	f.resetAll()

	n := f.rooms.Broadcast("P1", Event{Type: EvTaskUpdated, Payload: map[string]string{"taskId": "t1"}}, "a")
	assert.Equal(t, 2, n)

	assert.Empty(t, f.senders["a"].received(t))
	assert.Equal(t, []EventType{EvTaskUpdated}, f.senders["b"].types(t))
	assert.Equal(t, []EventType{EvTaskUpdated}, f.senders["c"].types(t))
	assert.Empty(t, f.senders["x"].received(t))

	n = f.rooms.Broadcast("P1", Event{Type: EvTaskUpdated, Payload: map[string]string{}}, "")
	assert.Equal(t, 3, n)
}

func TestRooms_BroadcastSkipsTornDownMembers(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob", "c": "carol"})

	for _, id := range []ConnID{"a", "b", "c"} {
		require.NoError(t, f.rooms.Join(id, "P1"))
	}
	f.resetAll()

	// b is gone from the registry but its room entry has not been evicted yet.
	_, _, removed := f.registry.Unbind("b")
	require.True(t, removed)

	n := f.rooms.Broadcast("P1", Event{Type: EvTaskCreated, Payload: map[string]string{}}, "a")
	assert.Equal(t, 1, n)
	assert.Empty(t, f.senders["b"].received(t))
	assert.Empty(t, f.failed)
}

func TestRooms_BroadcastReportsFailedSends(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice", "b": "bob"})

	require.NoError(t, f.rooms.Join("a", "P1"))
	require.NoError(t, f.rooms.Join("b", "P1"))
	f.senders["b"].setFail(errors.New("boom"))

	n := f.rooms.Broadcast("P1", Event{Type: EvTaskCreated, Payload: map[string]string{}}, "a")
	assert.Equal(t, 0, n)
	assert.Equal(t, []ConnID{"b"}, f.failed)
}

func TestRooms_JoinAfterUnbindFails(t *testing.T) {
	f := newRoomsFixture(t, map[ConnID]string{"a": "alice"})

	_, _, removed := f.registry.Unbind("a")
	require.True(t, removed)

	assert.Error(t, f.rooms.Join("a", "P1"))
	assert.Empty(t, f.rooms.MembersOf("P1"))
}

func TestRooms_NeverInTwoRooms(t *testing.T) {
	conns := map[ConnID]string{}
	ids := []ConnID{"c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	for _, id := range ids {
		conns[id] = string(id)
	}
	f := newRoomsFixture(t, conns)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id ConnID) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				room := []string{"A", "B", "C"}[(i+n)%3]
				_ = f.rooms.Join(id, room)
				if n%7 == 0 {
					f.rooms.Leave(id, room)
				}
			}
		}(i, id)
	}
	wg.Wait()

	seen := make(map[ConnID]int)
	for _, room := range []string{"A", "B", "C"} {
		for _, id := range f.rooms.MembersOf(room) {
			seen[id]++
			current, ok := f.rooms.RoomOf(id)
			require.True(t, ok)
			assert.Equal(t, room, current)
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "connection %s is in %d rooms", id, n)
	}
}
