package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleFinance Role = "finance"
)

var (
	ErrNoToken      = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid auth token")
	ErrForbidden    = errors.New("role not allowed")
)

// Claims is the token shape issued by the auth collaborator. This
// service only consumes it.
type Claims struct {
	jwt.RegisteredClaims
	Role Role   `json:"role"`
	Name string `json:"name"`
}

// Principal is the authenticated caller extracted from a token.
type Principal struct {
	ID   uuid.UUID
	Role Role
	Name string
}

type contextKey string

const principalKey contextKey = "principal"

// Verifier validates HMAC-signed tokens against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(token string) (*Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Principal{
		ID:   id,
		Role: claims.Role,
		Name: claims.Name,
	}, nil
}

// RequireRole gates a route to the given roles and stashes the
// principal in the request context.
func RequireRole(v *Verifier, onError func(w http.ResponseWriter, status int, err error), roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				onError(w, http.StatusUnauthorized, ErrNoToken)
				return
			}

			p, err := v.Parse(raw)
			if err != nil {
				onError(w, http.StatusUnauthorized, err)
				return
			}

			if !allowed[p.Role] {
				onError(w, http.StatusForbidden, ErrForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenFromRequest accepts both "Bearer <token>" and a bare token in
// the Authorization header.
func tokenFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return h
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
