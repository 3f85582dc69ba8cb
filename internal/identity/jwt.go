// Package identity turns a bearer token issued by the identity provider into an
// opaque user id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bilancio/internal/core"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// Verifier validates HS256 tokens; the subject claim is the user id.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify returns the token subject, or an error wrapping core.ErrNotAuthenticated.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("verify token: %w: %v", core.ErrNotAuthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("verify token: %w: missing subject", core.ErrNotAuthenticated)
	}
	return claims.Subject, nil
}

// VerifyHeader extracts and verifies a "Bearer <token>" Authorization value.
func (v *Verifier) VerifyHeader(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", fmt.Errorf("verify token: %w: missing bearer token", core.ErrNotAuthenticated)
	}
	return v.Verify(strings.TrimSpace(header[len(prefix):]))
}

// Issue signs a token for userID. Used by tests and local tooling; production
// tokens come from the identity provider.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns core.ErrNotAuthenticated when no user is attached.
func UserIDFromContext(ctx context.Context) (string, error) {
	uid, ok := ctx.Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", core.ErrNotAuthenticated
	}
	return uid, nil
}
