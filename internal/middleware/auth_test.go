package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutorhub-api/internal/pkg/jwt"
)

func newTestJWT(t *testing.T) *jwt.Service {
	t.Helper()
	return jwt.NewService("test-secret", 15*time.Minute, 24*time.Hour)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMissingHeader(t *testing.T) {
	handler := Auth(newTestJWT(t))(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMalformedHeader(t *testing.T) {
	handler := Auth(newTestJWT(t))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthValidToken(t *testing.T) {
	jwtService := newTestJWT(t)
	userID := uuid.New()

	token, err := jwtService.GenerateAccessToken(userID, "student")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var gotUserID uuid.UUID
	var gotRole string
	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != userID {
		t.Errorf("expected user id %s in context, got %s", userID, gotUserID)
	}
	if gotRole != "student" {
		t.Errorf("expected role student, got %q", gotRole)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	jwtService := jwt.NewService("test-secret", -time.Minute, 24*time.Hour)
	token, err := jwtService.GenerateAccessToken(uuid.New(), "student")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	handler := Auth(newTestJWT(t))(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	jwtService := newTestJWT(t)
	token, err := jwtService.GenerateAccessToken(uuid.New(), "student")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	handler := Auth(jwtService)(RequireTeacher()(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student on teacher route, got %d", rec.Code)
	}
}
