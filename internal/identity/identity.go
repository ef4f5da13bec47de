// Package identity consumes the identity collaborator: tokens minted by
// the auth service are verified into an actor id and role, which the
// lifecycle engine then trusts as given.
package identity

import (
	"errors"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type Actor struct {
	ID   string
	Role domain.Role
}

type Verifier interface {
	VerifyActor(token string) (*Actor, error)
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) VerifyActor(raw string) (*Actor, error) {
	t, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !t.Valid {
		return nil, ErrUnauthorized
	}

	c, ok := t.Claims.(*Claims)
	if !ok || c.Subject == "" {
		return nil, ErrUnauthorized
	}
	role, ok := domain.ParseRole(c.Role)
	if !ok {
		return nil, ErrUnauthorized
	}
	return &Actor{ID: c.Subject, Role: role}, nil
}

// Mint issues a signed token for an actor. Used by development tooling
// and tests; production tokens come from the auth service.
func Mint(secret, actorID string, role domain.Role, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
