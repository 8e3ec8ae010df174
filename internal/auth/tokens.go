package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// ErrNoSession means the caller is signed out: the token is missing,
// malformed, expired or revoked.
var ErrNoSession = errors.New("no active session")

// Session is a verified sign-in.
type Session struct {
	ID        string // jti, the revocation handle
	User      domain.User
	ExpiresAt time.Time
}

// Claims carried by a session token.
type Claims struct {
	Email string `json:"email,omitempty"`
	gojwt.RegisteredClaims
}

// Tokens mints and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token for user. ttl <= 0 uses the default lifetime.
func (t *Tokens) Issue(user domain.User, ttl time.Duration) (string, Session, error) {
	if user.ID == "" {
		return "", Session{}, fmt.Errorf("cannot issue a token without user id")
	}
	if ttl <= 0 {
		ttl = t.ttl
	}

	now := t.now()
	session := Session{
		ID:        uuid.NewString(),
		User:      user,
		ExpiresAt: now.Add(ttl).Truncate(time.Second),
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		Email: user.Email,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        session.ID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(session.ExpiresAt),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, session, nil
}

// Parse verifies a token and returns its session. Every failure wraps
// ErrNoSession.
func (t *Tokens) Parse(raw string) (Session, error) {
	if raw == "" {
		return Session{}, ErrNoSession
	}

	claims := &Claims{}
	_, err := gojwt.ParseWithClaims(raw, claims, func(*gojwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return Session{}, fmt.Errorf("%w: token missing subject or id", ErrNoSession)
	}

	return Session{
		ID:        claims.ID,
		User:      domain.User{ID: claims.Subject, Email: claims.Email},
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
