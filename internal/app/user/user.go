/*
Package user contains the identity snapshot of an authenticated user and the lookup contract
the rest of the server uses to resolve one.
*/
package user

import (
	"context"
	"errors"
)

// Global roles. RoleAdmin is a site-wide administrator, distinct from a project's admin member.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrNotFound is returned by a Store when no user has the requested id.
var ErrNotFound = errors.New("user not found")

// Identity is a read-only snapshot of a resolved user, safe to share between goroutines
// and to embed in outbound events.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Email       string `json:"email,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role"`
	IsActive    bool   `json:"isActive"`
}

// IsGlobalAdmin reports whether the identity is a site-wide administrator.
func (i Identity) IsGlobalAdmin() bool {
	return i.Role == RoleAdmin
}

// Store resolves identities by id.
type Store interface {
	// FetchUser returns ErrNotFound (possibly wrapped) for unknown ids.
	FetchUser(ctx context.Context, id string) (Identity, error)
}
