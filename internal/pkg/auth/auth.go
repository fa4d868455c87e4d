// Package auth verifies the cron shared secret and operator tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoSecret is returned when neither a plain secret nor a hash is configured.
	ErrNoSecret = errors.New("cron secret is not configured")
	// ErrInvalidToken is returned for tokens that fail parsing or claim checks.
	ErrInvalidToken = errors.New("invalid token")
)

// StaticSecret compares the presented secret with the configured one in constant time.
type StaticSecret []byte

// Verify implements httputil.SecretVerifier.
func (s StaticSecret) Verify(secret string) bool {
	return subtle.ConstantTimeCompare(s, []byte(secret)) == 1
}

// HashedSecret checks the presented secret against a bcrypt hash.
type HashedSecret []byte

// Verify implements httputil.SecretVerifier.
func (h HashedSecret) Verify(secret string) bool {
	return bcrypt.CompareHashAndPassword(h, []byte(secret)) == nil
}

// SecretVerifier is satisfied by StaticSecret and HashedSecret.
type SecretVerifier interface {
	Verify(secret string) bool
}

// NewSecretVerifier prefers the bcrypt hash when both values are set.
func NewSecretVerifier(secret, hash string) (SecretVerifier, error) {
	switch {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("parse cron secret hash: %w", err)
		}
		return HashedSecret(hash), nil
	case secret != "":
		return StaticSecret(secret), nil
	default:
		return nil, ErrNoSecret
	}
}

// JWTValidator validates HS256 operator tokens. The subject claim identifies the actor.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator creates a validator. An empty issuer disables the issuer check.
func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken implements httputil.TokenValidator.
func (v *JWTValidator) ValidateToken(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
