package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/models"
)

type resolverFunc func(ctx context.Context, userID int64) (models.Actor, error)

func (f resolverFunc) ResolveActor(ctx context.Context, userID int64) (models.Actor, error) {
	return f(ctx, userID)
}

func signed(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString err=%v", err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	resolver := resolverFunc(func(_ context.Context, id int64) (models.Actor, error) {
		if id == 7 {
			return models.Actor{ID: 7, Role: models.RoleAdmin}, nil
		}
		return models.Actor{}, errors.New("user not found")
	})

	var seen models.Actor
	handler := AuthMiddleware("secret", resolver, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	future := time.Now().Add(time.Hour)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + signed(t, "secret", strconv.Itoa(7), future), http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, "other", "7", future), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, "secret", "7", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"bad subject", "Bearer " + signed(t, "secret", "abc", future), http.StatusUnauthorized},
		{"unknown user", "Bearer " + signed(t, "secret", "8", future), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status=%d, want %d", rec.Code, tt.want)
			}
		})
	}
	if seen.ID != 7 || !seen.IsAdmin() {
		t.Fatalf("actor in context=%+v", seen)
	}
}
