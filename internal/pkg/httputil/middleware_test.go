package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticVerifier string

func (s staticVerifier) Verify(secret string) bool { return secret == string(s) }

type stubValidator struct{}

func (stubValidator) ValidateToken(_ context.Context, token string) (string, error) {
	if token == "good" {
		return "operator@example.com", nil
	}
	return "", errors.New("bad token")
}

func TestSharedSecretMiddleware(t *testing.T) {
	handler := SharedSecretMiddleware(staticVerifier("s3cret"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer s3cret"}, wantStatus: http.StatusNoContent},
		{name: "cron header", headers: map[string]string{CronSecretHeader: "s3cret"}, wantStatus: http.StatusNoContent},
		{name: "wrong bearer", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized},
		{name: "wrong header", headers: map[string]string{CronSecretHeader: "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "missing", headers: nil, wantStatus: http.StatusUnauthorized},
		{name: "basic scheme falls back to header", headers: map[string]string{"Authorization": "Basic abc", CronSecretHeader: "s3cret"}, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/evaluate-alerts", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	var gotActor string
	handler := AuthMiddleware(stubValidator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token sets actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "operator@example.com", gotActor)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "good")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid authorization header format")
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
