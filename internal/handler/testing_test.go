package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskflow/internal/app/collab"
	"taskflow/internal/app/db"
	"taskflow/internal/app/project"
	"taskflow/internal/app/storage"
	"taskflow/internal/app/user"
	"taskflow/internal/configs"
	"taskflow/internal/pkg/auth/jwt"
)

const (
	testSecret   = "handler-test-secret"
	testPassword = "correct-horse"
)

// memStore keeps users and projects in memory and reports conflicts the way PostgreSQL does.
type memStore struct {
	mu       sync.Mutex
	users    map[string]db.UserRow
	projects map[string]project.Project
	seq      int
}

func (s *memStore) CreateUser(_ context.Context, arg db.CreateUserParams) (db.UserRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(arg.Email)
	for _, u := range s.users {
		if u.Email == email {
			return db.UserRow{}, &pgconn.PgError{Code: "23505"}
		}
	}

	s.seq++
	row := db.UserRow{
		ID:           fmt.Sprintf("user-%d", s.seq),
		Email:        email,
		DisplayName:  arg.DisplayName,
		PasswordHash: arg.PasswordHash,
		Role:         user.RoleUser,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	s.users[row.ID] = row
	return row, nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (db.UserRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return db.UserRow{}, user.ErrNotFound
}

func (s *memStore) GetUserByID(_ context.Context, id string) (db.UserRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return db.UserRow{}, user.ErrNotFound
	}
	return u, nil
}

func (s *memStore) UpdateLastLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.LastLoginAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	s.users[id] = u
	return nil
}

func (s *memStore) FetchUser(ctx context.Context, id string) (user.Identity, error) {
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return user.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *memStore) FetchProject(_ context.Context, id string) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	p.Members = append([]project.Member(nil), p.Members...)
	return p, nil
}

func (s *memStore) CreateProject(_ context.Context, name, ownerID string) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	p := project.Project{
		ID:        fmt.Sprintf("project-%d", s.seq),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		Members: []project.Member{{
			UserID:      ownerID,
			Role:        project.RoleOwner,
			Permissions: project.DefaultPermissions(project.RoleOwner),
		}},
	}
	s.projects[p.ID] = p
	return p, nil
}

func (s *memStore) AddMember(_ context.Context, projectID, userID string, role project.Role) (project.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return project.Member{}, &pgconn.PgError{Code: "23503"}
	}
	if project.IsMember(p.Members, userID) {
		return project.Member{}, &pgconn.PgError{Code: "23505"}
	}

	m := project.Member{UserID: userID, Role: role, Permissions: project.DefaultPermissions(role), JoinedAt: time.Now()}
	p.Members = append(p.Members, m)
	s.projects[projectID] = p
	return m, nil
}

// fakeStorage is an in-memory bucket.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	deleted []string
}

func (f *fakeStorage) PresignUpload(_ context.Context, key, mimeType string, fileSize int64, _ time.Duration) (string, error) {
	return "https://bucket.example.com/" + key + "?upload", nil
}

func (f *fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.example.com/" + key + "?download", nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

// recordingSender is a collab.Sender that keeps every frame.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSender) TrySend(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) Close() {}

func (s *recordingSender) types(t *testing.T) []collab.EventType {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []collab.EventType
	for _, f := range s.frames {
		var env collab.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env.Type)
	}
	return out
}

// seedStore returns a store holding:
//
//	alice  owner of P1
//	bob    member of P1 with no extra permissions
//	vic    viewer of P1
//	carol  not a member of anything
//	root   global admin
//	gone   deactivated
func seedStore(t *testing.T) *memStore {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	s := &memStore{
		users:    make(map[string]db.UserRow),
		projects: make(map[string]project.Project),
	}

	for _, u := range []struct {
		id, role string
		active   bool
	}{
		{"alice", user.RoleUser, true},
		{"bob", user.RoleUser, true},
		{"vic", user.RoleUser, true},
		{"carol", user.RoleUser, true},
		{"root", user.RoleAdmin, true},
		{"gone", user.RoleUser, false},
	} {
		s.users[u.id] = db.UserRow{
			ID:           u.id,
			Email:        u.id + "@example.com",
			DisplayName:  strings.ToUpper(u.id[:1]) + u.id[1:],
			PasswordHash: string(hash),
			Role:         u.role,
			IsActive:     u.active,
		}
	}

	s.projects["P1"] = project.Project{
		ID:      "P1",
		Name:    "Launch",
		OwnerID: "alice",
		Members: []project.Member{
			{UserID: "alice", Role: project.RoleOwner, Permissions: project.DefaultPermissions(project.RoleOwner)},
			{UserID: "bob", Role: project.RoleMember, Permissions: project.DefaultPermissions(project.RoleMember)},
			{UserID: "vic", Role: project.RoleViewer, Permissions: project.DefaultPermissions(project.RoleViewer)},
		},
	}

	return s
}

type testEnv struct {
	deps    *AppDeps
	store   *memStore
	bucket  *fakeStorage
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := seedStore(t)
	bucket := &fakeStorage{objects: map[string]storage.ObjectInfo{
		"P1/report.pdf": {ContentType: "application/pdf", Size: 1024},
		"P2/other.pdf":  {ContentType: "application/pdf", Size: 1024},
	}}

	hub := collab.NewHub(collab.NewVerifier(testSecret, store), store)
	t.Cleanup(hub.Shutdown)

	deps := &AppDeps{
		Hub: hub,
		Config: &configs.AppConfig{
			Environment: "development",
			JWTSecret:   testSecret,
		},
		Users:          store,
		Projects:       store,
		StorageService: bucket,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &testEnv{deps: deps, store: store, bucket: bucket, handler: Router(ctx, deps)}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()

	token, err := jwt.GenerateToken(userID, userID+"@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

type response struct {
	Status  int
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a request as userID ("" for anonymous) and decodes the envelope.
func (e *testEnv) do(t *testing.T, method, target, userID string, body any) response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, target, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		r.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)

	out := response{Status: w.Code}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return out
}

func (r response) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, dst))
}
