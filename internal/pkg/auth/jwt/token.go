package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// UserIdentityExpiration is the lifetime of tokens issued on login and register.
	UserIdentityExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "TaskFlow-Server"
)

var (
	// ErrEmptySubject is returned for tokens that carry no user id.
	ErrEmptySubject = errors.New("token has no subject")

	// ErrInvalidToken is returned for tokens that fail validation without a more specific cause.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// GenerateToken signs an HS256 token for userID that expires after duration.
func GenerateToken(userID, email, secretKey string, duration time.Duration) (string, error) {
	if userID == "" {
		return "", ErrEmptySubject
	}

	now := time.Now()

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			ExpiresAt: now.Add(duration).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secretKey))
}

// ParseToken validates signature, expiry and issuer of tokenString and returns its claims.
func ParseToken(tokenString string, secretKey string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if !claims.VerifyIssuer(TokenIssuer, true) {
		return nil, fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}

	if claims.Subject == "" {
		return nil, ErrEmptySubject
	}

	return claims, nil
}
