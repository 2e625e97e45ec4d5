// Package auth is the admin capability check. Public query endpoints never
// consult it.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrUnauthorized = errors.New("unauthorized")

const roleAdmin = "admin"

type Principal struct {
	Subject string
}

// Authorizer decides whether a request may use the admin surface.
type Authorizer interface {
	Authorize(r *http.Request) (Principal, error)
}

// JWT verifies HS256 bearer tokens carrying role=admin.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) (*JWT, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs an admin token for subject. Tokens are minted by operator
// tooling holding the shared secret; the server only verifies them.
func (j *JWT) Issue(subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": roleAdmin,
		"iat":  j.now().Unix(),
		"exp":  j.now().Add(j.ttl).Unix(),
	})
	return token.SignedString(j.secret)
}

func (j *JWT) Authorize(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return Principal{}, ErrUnauthorized
	}
	return j.parse(parts[1])
}

func (j *JWT) parse(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	if role, _ := claims["role"].(string); role != roleAdmin {
		return Principal{}, ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, ErrUnauthorized
	}
	return Principal{Subject: sub}, nil
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
