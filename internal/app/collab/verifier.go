package collab

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"taskflow/internal/app/user"
	"taskflow/internal/pkg/auth/jwt"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
)

// Verifier resolves a bearer token to an active user identity.
type Verifier struct {
	secret string
	users  user.Store
	logger zerolog.Logger
}

// NewVerifier returns a Verifier checking tokens signed with secret and resolving their
// subject through users.
func NewVerifier(secret string, users user.Store) *Verifier {
	return &Verifier{
		secret: secret,
		users:  users,
		logger: logx.Component("verifier"),
	}
}

// Verify validates token and returns the identity of its subject. Every failure, including
// a lookup error, is reported as an ErrUnauthenticated CustomError.
func (v *Verifier) Verify(ctx context.Context, token string) (user.Identity, error) {
	claims, err := jwt.ParseToken(token, v.secret)
	if err != nil {
		v.logger.Debug().Err(err).Msg("Token rejected")
		return user.Identity{}, unauthenticated("Invalid token")
	}

	identity, err := v.users.FetchUser(ctx, claims.UserID())
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			v.logger.Error().Err(err).Str("user_id", claims.UserID()).Msg("User lookup failed during verification")
		}
		return user.Identity{}, unauthenticated("Invalid user")
	}

	if !identity.IsActive {
		v.logger.Info().Str("user_id", identity.ID).Msg("Inactive user attempted to authenticate")
		return user.Identity{}, unauthenticated("Invalid user")
	}

	return identity, nil
}

func unauthenticated(message string) *errs.CustomError {
	e := errs.NewError(errs.ErrUnauthenticated)
	e.Message = message
	return e
}
