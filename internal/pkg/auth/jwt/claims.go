package jwt

import "github.com/golang-jwt/jwt"

// Claims is the JWT claim set issued by the server.
// The authenticated user's id travels in the standard "sub" claim.
type Claims struct {
	jwt.StandardClaims

	// Email is informational only; the server always re-resolves the user by Subject.
	Email string `json:"email,omitempty"`
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}
