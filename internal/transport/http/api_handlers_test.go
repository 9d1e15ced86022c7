package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func makeJWT(secret, aud, iss string, userID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "password123",
	})
	expectStatus(t, resp, http.StatusCreated)
	if decode[AuthResponse](t, resp).Token == "" {
		t.Fatalf("expected token in register response")
	}

	resp = s.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"name": "Alice again", "email": "alice@example.com", "password": "password123",
	})
	expectStatus(t, resp, http.StatusConflict)

	resp = s.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = s.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	expectStatus(t, resp, http.StatusOK)
	token := decode[AuthResponse](t, resp).Token

	resp = s.do(t, http.MethodGet, "/api/v1/me", token, nil)
	expectStatus(t, resp, http.StatusOK)
	me := decode[UserResponse](t, resp)
	if me.Name != "Alice" || me.Email != "alice@example.com" {
		t.Errorf("unexpected me response: %+v", me)
	}
}

func TestRegister_RejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{
		"name": "Bob", "email": "not-an-email", "password": "password123",
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = s.do(t, http.MethodPost, "/api/v1/register", "", map[string]string{"name": "Bob"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")

	foreign, err := makeJWT("another-secret", "test", "test", alice.ID, time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	wrongAudience, err := makeJWT(testJWTSecret, "elsewhere", "test", alice.ID, time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	expired, err := makeJWT(testJWTSecret, "test", "test", alice.ID, -time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", alice.Token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", foreign, http.StatusUnauthorized},
		{"wrong audience", wrongAudience, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodGet, "/api/v1/me", tt.token, nil)
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Body.String() != "ok" {
		t.Errorf("expected body ok, got %q", resp.Body.String())
	}
	if _, err := uuid.Parse(resp.Header().Get(HeaderRequestID)); err != nil {
		t.Errorf("expected generated request id, got %q", resp.Header().Get(HeaderRequestID))
	}
}
