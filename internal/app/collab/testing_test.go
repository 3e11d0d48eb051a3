package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskflow/internal/app/project"
	"taskflow/internal/app/user"
	"taskflow/internal/pkg/auth/jwt"
)

const testSecret = "collab-test-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSender records frames in memory.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	closed int
	fail   error
}

func (s *fakeSender) TrySend(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed > 0 {
		return ErrSenderClosed
	}
	if s.fail != nil {
		return s.fail
	}

	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed++
}

func (s *fakeSender) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = err
}

func (s *fakeSender) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// received decodes every recorded frame.
func (s *fakeSender) received(t *testing.T) []Envelope {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Envelope, 0, len(s.frames))
	for _, f := range s.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

// types lists the event types recorded so far.
func (s *fakeSender) types(t *testing.T) []EventType {
	t.Helper()

	var out []EventType
	for _, env := range s.received(t) {
		out = append(out, env.Type)
	}
	return out
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = nil
}

type fakeUsers map[string]user.Identity

func (f fakeUsers) FetchUser(_ context.Context, id string) (user.Identity, error) {
	u, ok := f[id]
	if !ok {
		return user.Identity{}, user.ErrNotFound
	}
	return u, nil
}

type fakeProjects struct {
	mu       sync.Mutex
	projects map[string]project.Project
	err      error
}

func (f *fakeProjects) FetchProject(_ context.Context, id string) (project.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return project.Project{}, f.err
	}

	p, ok := f.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func testUsers() fakeUsers {
	return fakeUsers{
		"alice": {ID: "alice", DisplayName: "Alice", Role: user.RoleUser, IsActive: true},
		"bob":   {ID: "bob", DisplayName: "Bob", Role: user.RoleUser, IsActive: true},
		"carol": {ID: "carol", DisplayName: "Carol", Role: user.RoleUser, IsActive: true},
		"vic":   {ID: "vic", DisplayName: "Vic", Role: user.RoleUser, IsActive: true},
		"root":  {ID: "root", DisplayName: "Root", Role: user.RoleAdmin, IsActive: true},
		"eve":   {ID: "eve", DisplayName: "Eve", Role: user.RoleUser, IsActive: true},
		"u9":    {ID: "u9", DisplayName: "Nine", Role: user.RoleUser, IsActive: true},
		"gone":  {ID: "gone", DisplayName: "Gone", Role: user.RoleUser, IsActive: false},
	}
}

func testProjects() *fakeProjects {
	members := []project.Member{
		{UserID: "alice", Role: project.RoleOwner},
		{UserID: "bob", Role: project.RoleMember, Permissions: map[project.Permission]bool{project.CanEditProject: true}},
		{UserID: "carol", Role: project.RoleMember},
		{UserID: "vic", Role: project.RoleViewer},
	}

	return &fakeProjects{projects: map[string]project.Project{
		"P1": {ID: "P1", Name: "Launch", OwnerID: "alice", Members: members},
		"P2": {ID: "P2", Name: "Backlog", OwnerID: "alice", Members: members},
	}}
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *fakeProjects) {
	t.Helper()

	projects := testProjects()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)

	h := NewHub(NewVerifier(testSecret, testUsers()), projects, opts...)
	t.Cleanup(h.Shutdown)

	return h, projects
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()

	token, err := jwt.GenerateToken(userID, userID+"@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func frame(t *testing.T, typ EventType, payload any) []byte {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	out, err := json.Marshal(Envelope{Type: typ, Payload: raw})
	require.NoError(t, err)
	return out
}

// connect accepts a fake connection and authenticates it as userID.
func connect(t *testing.T, h *Hub, userID string) (ConnID, *fakeSender) {
	t.Helper()

	s := &fakeSender{}
	id := h.Accept(s)

	h.Handle(context.Background(), id, frame(t, EvAuthenticate, AuthenticatePayload{Token: tokenFor(t, userID)}))
	require.True(t, h.isAuthenticated(id), "connection for %s should be authenticated", userID)

	s.reset()
	return id, s
}

// joined connects userID and joins it to roomID, clearing the frames it received so far.
func joined(t *testing.T, h *Hub, userID, roomID string) (ConnID, *fakeSender) {
	t.Helper()

	id, s := connect(t, h, userID)
	h.Handle(context.Background(), id, frame(t, EvJoinProject, ProjectRef{ProjectID: roomID}))

	got, ok := h.rooms.RoomOf(id)
	require.True(t, ok)
	require.Equal(t, roomID, got)

	s.reset()
	return id, s
}

func errorOf(t *testing.T, env Envelope) ErrorPayload {
	t.Helper()

	require.Equal(t, EvError, env.Type)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func payloadFields(t *testing.T, env Envelope) map[string]json.RawMessage {
	t.Helper()

	fields := make(map[string]json.RawMessage)
	require.NoError(t, json.Unmarshal(env.Payload, &fields))
	return fields
}

// isAuthenticated reports whether id is live and bound to an identity.
func (h *Hub) isAuthenticated(id ConnID) bool {
	_, ok := h.registry.IdentityOf(id)
	return ok
}
