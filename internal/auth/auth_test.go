package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, subject string, role Role) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
		Name: "Test User",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	id := uuid.New()

	p, err := v.Parse(mintToken(t, testSecret, id.String(), RoleDoctor))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.ID != id {
		t.Fatalf("expected id %s, got %s", id, p.ID)
	}
	if p.Role != RoleDoctor {
		t.Fatalf("expected doctor role, got %s", p.Role)
	}
	if p.Name != "Test User" {
		t.Fatalf("expected name carried over, got %q", p.Name)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	v := NewVerifier(testSecret)
	id := uuid.New()

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", mintToken(t, "other-secret", id.String(), RolePatient)},
		{"non-uuid subject", mintToken(t, testSecret, "user-42", RolePatient)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Parse(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: RolePatient,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func requireRoleHarness(t *testing.T, roles ...Role) (http.Handler, *int, *error) {
	t.Helper()
	var gotStatus int
	var gotErr error
	onError := func(w http.ResponseWriter, status int, err error) {
		gotStatus = status
		gotErr = err
		w.WriteHeader(status)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			t.Error("principal missing from request context")
		}
		w.WriteHeader(http.StatusOK)
	})

	return RequireRole(NewVerifier(testSecret), onError, roles...)(inner), &gotStatus, &gotErr
}

func TestRequireRoleAllows(t *testing.T) {
	h, _, _ := requireRoleHarness(t, RoleDoctor, RoleFinance)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, uuid.NewString(), RoleFinance))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRoleBareToken(t *testing.T) {
	h, _, _ := requireRoleHarness(t, RolePatient)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", mintToken(t, testSecret, uuid.NewString(), RolePatient))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for bare token, got %d", rec.Code)
	}
}

func TestRequireRoleMissingToken(t *testing.T) {
	h, status, errOut := requireRoleHarness(t, RolePatient)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", *status)
	}
	if !errors.Is(*errOut, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", *errOut)
	}
}

func TestRequireRoleWrongRole(t *testing.T) {
	h, status, errOut := requireRoleHarness(t, RoleFinance)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, uuid.NewString(), RolePatient))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", *status)
	}
	if !errors.Is(*errOut, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", *errOut)
	}
}
