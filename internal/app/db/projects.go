package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskflow/internal/app/project"
)

const getProject = `
SELECT id::text, name, owner_id::text, is_archived, created_at
FROM projects
WHERE id = $1`

const listProjectMembers = `
SELECT user_id::text, role, permissions, joined_at
FROM project_members
WHERE project_id = $1
ORDER BY joined_at, user_id`

// FetchProject implements project.Store. The membership list is read in join order.
func (s *Store) FetchProject(ctx context.Context, id string) (project.Project, error) {
	pid, ok := parseUUID(id)
	if !ok {
		return project.Project{}, project.ErrNotFound
	}

	var p project.Project
	err := s.db.QueryRow(ctx, getProject, pid).Scan(&p.ID, &p.Name, &p.OwnerID, &p.IsArchived, &p.CreatedAt)
	if isNoRows(err) {
		return project.Project{}, project.ErrNotFound
	}
	if err != nil {
		return project.Project{}, fmt.Errorf("fetch project %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx, listProjectMembers, pid)
	if err != nil {
		return project.Project{}, fmt.Errorf("list members of %s: %w", id, err)
	}

	p.Members, err = pgx.CollectRows(rows, scanMember)
	if err != nil {
		return project.Project{}, fmt.Errorf("scan members of %s: %w", id, err)
	}

	return p, nil
}

func scanMember(row pgx.CollectableRow) (project.Member, error) {
	var m project.Member
	err := row.Scan(&m.UserID, &m.Role, &m.Permissions, &m.JoinedAt)
	return m, err
}

const insertProject = `
INSERT INTO projects (name, owner_id)
VALUES ($1, $2)
RETURNING id::text, name, owner_id::text, is_archived, created_at`

const insertMember = `
INSERT INTO project_members (project_id, user_id, role, permissions)
VALUES ($1, $2, $3, $4)
RETURNING joined_at`

// CreateProject inserts a project and its owner membership in one transaction.
func (s *Store) CreateProject(ctx context.Context, name, ownerID string) (project.Project, error) {
	oid, ok := parseUUID(ownerID)
	if !ok {
		return project.Project{}, fmt.Errorf("create project: malformed owner id %q", ownerID)
	}

	var p project.Project

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertProject, name, oid).
			Scan(&p.ID, &p.Name, &p.OwnerID, &p.IsArchived, &p.CreatedAt)
		if err != nil {
			return err
		}

		owner := project.Member{
			UserID:      ownerID,
			Role:        project.RoleOwner,
			Permissions: project.DefaultPermissions(project.RoleOwner),
		}

		pid, _ := parseUUID(p.ID)
		if err := tx.QueryRow(ctx, insertMember, pid, oid, owner.Role, owner.Permissions).Scan(&owner.JoinedAt); err != nil {
			return err
		}

		p.Members = []project.Member{owner}
		return nil
	})
	if err != nil {
		return project.Project{}, fmt.Errorf("create project: %w", err)
	}

	return p, nil
}

// AddMember adds userID to projectID with role and the role's default permissions.
// An existing membership is a unique violation; an unknown user or project is a foreign key
// violation.
func (s *Store) AddMember(ctx context.Context, projectID, userID string, role project.Role) (project.Member, error) {
	pid, ok := parseUUID(projectID)
	if !ok {
		return project.Member{}, project.ErrNotFound
	}

	uid, ok := parseUUID(userID)
	if !ok {
		return project.Member{}, fmt.Errorf("add member: malformed user id %q", userID)
	}

	m := project.Member{
		UserID:      userID,
		Role:        role,
		Permissions: project.DefaultPermissions(role),
	}

	if err := s.db.QueryRow(ctx, insertMember, pid, uid, m.Role, m.Permissions).Scan(&m.JoinedAt); err != nil {
		return project.Member{}, fmt.Errorf("add member: %w", err)
	}

	return m, nil
}
