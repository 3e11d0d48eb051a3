/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"taskflow/internal/app/db"
	"taskflow/internal/app/user"
	"taskflow/internal/pkg/auth/jwt"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
	"taskflow/internal/pkg/req"
	"taskflow/internal/pkg/resp"

	"golang.org/x/crypto/bcrypt"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const maxDisplayNameLength = 50

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// HandleRegister creates an account and signs the caller in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claims := jwt.GetClaimsFromContext(r); claims != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		email := strings.ToLower(strings.TrimSpace(input.Email))
		if !emailRegex.MatchString(email) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
			return
		}

		if !validPassword(input.Password) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		name := strings.TrimSpace(input.Name)
		if name == "" {
			name = email[:strings.IndexByte(email, '@')]
		}
		if utf8.RuneCountInString(name) > maxDisplayNameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		row, err := deps.Users.CreateUser(r.Context(), db.CreateUserParams{
			Email:        email,
			DisplayName:  name,
			PasswordHash: string(hashedPassword),
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				logx.Warn("registration conflict: email already exists")
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user in database")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if err := deps.Users.UpdateLastLogin(r.Context(), row.ID); err != nil {
			logx.Error(err, "register: failed to update last_login_at", "user_id", row.ID)
		}

		token, err := jwt.GenerateToken(row.ID, row.Email, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "failed to generate token after registration")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondCreated(w, r, map[string]any{
			"token": token,
			"user":  row.Identity(),
		})
	}
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claims := jwt.GetClaimsFromContext(r); claims != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		row, err := deps.Users.GetUserByEmail(r.Context(), strings.TrimSpace(input.Email))
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				logx.Error(err, "login: user fetch failed")
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "user_id", row.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !row.IsActive {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserInactive))
			return
		}

		if err := deps.Users.UpdateLastLogin(r.Context(), row.ID); err != nil {
			logx.Error(err, "login: failed to update last_login_at", "user_id", row.ID)
		}

		token, err := jwt.GenerateToken(row.ID, row.Email, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": token,
			"user":  row.Identity(),
		})
	}
}

// HandleGetCurrentUser returns the caller's profile.
func HandleGetCurrentUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, customErr := currentUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var lastLogin any
		if row.LastLoginAt.Valid {
			lastLogin = row.LastLoginAt.Time.Format(time.RFC3339)
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user":        row.Identity(),
			"lastLoginAt": lastLogin,
		})
	}
}

// currentUser resolves the bearer token's subject to a live, active account.
// Deleted accounts and deactivated ones are rejected even while their token is still valid.
func currentUser(deps *AppDeps, r *http.Request) (db.UserRow, *errs.CustomError) {
	claims := jwt.GetClaimsFromContext(r)
	if claims == nil {
		return db.UserRow{}, errs.NewError(errs.ErrUnauthenticated)
	}

	row, err := deps.Users.GetUserByID(r.Context(), claims.UserID())
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logx.Error(err, "failed to resolve token subject", "user_id", claims.UserID())
			return db.UserRow{}, errs.NewError(errs.ErrUnknown)
		}
		return db.UserRow{}, errs.NewError(errs.ErrUnauthenticated)
	}

	if !row.IsActive {
		return db.UserRow{}, errs.NewError(errs.ErrUserInactive)
	}

	return row, nil
}

func validPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= 6 && n <= 50
}
