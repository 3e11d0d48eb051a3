package handler

import (
	"context"

	"taskflow/internal/app/collab"
	"taskflow/internal/app/db"
	"taskflow/internal/app/project"
	"taskflow/internal/app/storage"
	"taskflow/internal/configs"
)

// UserRepository is the user persistence the HTTP handlers need. *db.Store implements it.
type UserRepository interface {
	CreateUser(ctx context.Context, arg db.CreateUserParams) (db.UserRow, error)
	GetUserByEmail(ctx context.Context, email string) (db.UserRow, error)
	GetUserByID(ctx context.Context, id string) (db.UserRow, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// ProjectRepository is the project persistence the HTTP handlers need. *db.Store implements it.
type ProjectRepository interface {
	project.Store
	CreateProject(ctx context.Context, name, ownerID string) (project.Project, error)
	AddMember(ctx context.Context, projectID, userID string, role project.Role) (project.Member, error)
}

type AppDeps struct {
	Hub      *collab.Hub
	Config   *configs.AppConfig
	Users    UserRepository
	Projects ProjectRepository

	// StorageService is nil when no bucket is configured; attachment routes then answer
	// ErrFileStorageFailed.
	StorageService storage.StorageService
}
