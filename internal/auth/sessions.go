package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// Session change events.
const (
	EventSignedOut = "SIGNED_OUT"
)

// Event is published on a user's session channel.
type Event struct {
	Type      string `json:"event"`
	SessionID string `json:"session_id"`
}

// Store keeps revocations and carries session events between processes.
type Store interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	Revoked(ctx context.Context, sessionID string) (bool, error)
	Publish(ctx context.Context, userID string, e Event) error
	// Subscribe streams the user's events until cancel is called or ctx ends.
	Subscribe(ctx context.Context, userID string) (events <-chan Event, cancel func(), err error)
}

// Sessions answers "who is signed in" and handles sign-out.
type Sessions struct {
	tokens *Tokens
	store  Store
	log    logger.Logger
}

func NewSessions(tokens *Tokens, store Store, log logger.Logger) *Sessions {
	return &Sessions{tokens: tokens, store: store, log: log}
}

// Tokens returns the token codec.
func (s *Sessions) Tokens() *Tokens { return s.tokens }

// CurrentUser resolves a bearer token into its session.
func (s *Sessions) CurrentUser(ctx context.Context, token string) (Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}

	revoked, err := s.store.Revoked(ctx, session.ID)
	if err != nil {
		return Session{}, fmt.Errorf("failed to check session: %w", err)
	}
	if revoked {
		return Session{}, fmt.Errorf("%w: session revoked", ErrNoSession)
	}
	return session, nil
}

// SignOut revokes the session behind token and notifies the user's open
// tabs. Signing out an already revoked session is not an error.
func (s *Sessions) SignOut(ctx context.Context, token string) (Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}

	if err := s.store.Revoke(ctx, session.ID, session.ExpiresAt); err != nil {
		return Session{}, fmt.Errorf("failed to revoke session: %w", err)
	}

	if err := s.store.Publish(ctx, session.User.ID, Event{Type: EventSignedOut, SessionID: session.ID}); err != nil {
		// revocation already holds; open tabs notice on their next request
		s.log.Warn("failed to publish sign-out",
			logger.String("user", session.User.ID),
			logger.Error(err))
	}

	s.log.Info("session signed out",
		logger.String("user", session.User.ID),
		logger.String("session", session.ID))
	return session, nil
}

// Watch streams session events for userID.
func (s *Sessions) Watch(ctx context.Context, userID string) (<-chan Event, func(), error) {
	return s.store.Subscribe(ctx, userID)
}
