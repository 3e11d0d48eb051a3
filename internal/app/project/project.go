/*
Package project holds the membership model of a project and the permission evaluator that
decides which actions a member may take.
*/
package project

import (
	"context"
	"errors"
	"time"
)

// Role is a member's role within one project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Permission names a fine-grained capability stored per member.
type Permission string

const (
	CanEditProject   Permission = "canEditProject"
	CanDeleteTasks   Permission = "canDeleteTasks"
	CanInviteMembers Permission = "canInviteMembers"
	CanManageMembers Permission = "canManageMembers"
)

// KnownPermissions lists every permission the server stores.
var KnownPermissions = []Permission{CanEditProject, CanDeleteTasks, CanInviteMembers, CanManageMembers}

// ErrNotFound is returned by a Store when no project has the requested id.
var ErrNotFound = errors.New("project not found")

// Member is one entry of a project's membership list.
type Member struct {
	UserID      string              `json:"userId"`
	Role        Role                `json:"role"`
	Permissions map[Permission]bool `json:"permissions"`
	JoinedAt    time.Time           `json:"joinedAt"`
}

// Project is a snapshot of a project as needed by the realtime layer.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"ownerId"`
	IsArchived bool      `json:"isArchived"`
	Members    []Member  `json:"members"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store resolves projects with their membership list.
type Store interface {
	// FetchProject returns ErrNotFound (possibly wrapped) for unknown ids.
	FetchProject(ctx context.Context, id string) (Project, error)
}
