package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const userKey ctxKey = 1

// Claims identifies the authenticated user.
type Claims struct {
	UserID   string
	Username string
}

// WithUser adds the user's claims to the context
func WithUser(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, userKey, c)
}

// FromContext extracts the user's claims, ok is false for anonymous requests
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(userKey).(Claims)
	return c, ok && c.UserID != ""
}

// JWT wraps a signing secret for issuing/verifying tokens
type JWT struct{ secret []byte }

// New creates a new JWT signer/verifier.
func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks a token and returns its sub + username claims
func (j *JWT) Verify(tok string) (Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return Claims{}, errors.New("no sub")
	}
	name, _ := claims["username"].(string)
	return Claims{UserID: uid, Username: name}, nil
}

// Sign creates a token for the user with the given TTL
func (j *JWT) Sign(c Claims, ttl time.Duration) (string, error) {
	if c.UserID == "" {
		return "", errors.New("empty uid")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      c.UserID,
		"username": c.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}
