package httputil

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// ActorKey stores the authenticated operator in the request context.
const ActorKey contextKey = "actor"

// CronSecretHeader is the alternative header carrying the cron shared secret.
const CronSecretHeader = "X-Cron-Secret"

// SecretVerifier checks a presented shared secret.
type SecretVerifier interface {
	Verify(secret string) bool
}

// TokenValidator validates an operator token and returns the actor it identifies.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (actor string, err error)
}

// SharedSecretMiddleware guards cron endpoints. The secret is taken from
// "Authorization: Bearer <secret>" or from the X-Cron-Secret header.
func SharedSecretMiddleware(verifier SecretVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearerToken(r)
			if !ok {
				secret = r.Header.Get(CronSecretHeader)
			}
			if secret == "" {
				Error(w, http.StatusUnauthorized, "missing cron secret")
				return
			}
			if !verifier.Verify(secret) {
				Error(w, http.StatusUnauthorized, "invalid cron secret")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware creates operator authentication middleware.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				Error(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			actor, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor extracts the operator from context.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorKey).(string); ok {
		return actor
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
