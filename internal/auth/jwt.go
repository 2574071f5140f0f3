package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrAnonToken    = errors.New("token does not identify a user")
)

// User is a caller verified by the auth service.
type User struct {
	ID    uuid.UUID
	Email string
	Role  string
}

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// Claims are the JWT claims issued by the hosted auth service.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with the project's JWT secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates token. Tokens without a subject (the publishable
// anon key, for instance) are rejected with ErrAnonToken.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*User, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "anon" {
		return nil, ErrAnonToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	return &User{ID: id, Email: claims.Email, Role: claims.Role}, nil
}

// MintToken issues a signed token for local development and tests.
func MintToken(secret string, userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
