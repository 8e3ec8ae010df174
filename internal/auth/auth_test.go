package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)

	raw, issued, err := tokens.Issue(domain.User{ID: "u1", Email: "a@example.com"}, 0)
	require.NoError(t, err)

	got, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, "u1", got.User.ID)
	assert.Equal(t, "a@example.com", got.User.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, 2*time.Second)
}

func TestTokensReject(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)
	valid, _, err := tokens.Issue(domain.User{ID: "u1"}, 0)
	require.NoError(t, err)

	expired := NewTokens(secret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(domain.User{ID: "u1"}, 0)
	require.NoError(t, err)

	otherKey, _, err := NewTokens("another-secret-of-enough-length", time.Hour).Issue(domain.User{ID: "u1"}, 0)
	require.NoError(t, err)

	other, _, err := tokens.Issue(domain.User{ID: "u2"}, 0)
	require.NoError(t, err)
	parts, otherParts := strings.Split(valid, "."), strings.Split(other, ".")
	tampered := parts[0] + "." + otherParts[1] + "." + parts[2]

	noExp, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{"sub": "u1", "jti": "s1"}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"expired", old},
		{"wrong key", otherKey},
		{"missing expiry", noExp},
		{"tampered", tampered},
		{"alg none", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ1MSJ9."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Parse(tt.token)
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestIssueRequiresUser(t *testing.T) {
	_, _, err := NewTokens(secret, time.Hour).Issue(domain.User{}, 0)
	assert.Error(t, err)
}

func TestSignOutRevokesAndNotifies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := NewMemoryStore()
	sessions := NewSessions(NewTokens(secret, time.Hour), store, logger.NewNop())

	raw, issued, err := sessions.Tokens().Issue(domain.User{ID: "u1"}, 0)
	require.NoError(t, err)

	current, err := sessions.CurrentUser(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, current.ID)

	events, stop, err := sessions.Watch(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	_, err = sessions.SignOut(ctx, raw)
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, EventSignedOut, e.Type)
		assert.Equal(t, issued.ID, e.SessionID)
	case <-ctx.Done():
		t.Fatal("sign-out event not delivered")
	}

	_, err = sessions.CurrentUser(ctx, raw)
	assert.ErrorIs(t, err, ErrNoSession)

	// a second sign-out of the same token is harmless
	_, err = sessions.SignOut(ctx, raw)
	assert.NoError(t, err)
}

func TestSignOutWithoutSession(t *testing.T) {
	sessions := NewSessions(NewTokens(secret, time.Hour), NewMemoryStore(), logger.NewNop())
	_, err := sessions.SignOut(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMemoryStoreWatchCancel(t *testing.T) {
	store := NewMemoryStore()
	events, cancel, err := store.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)
	assert.NoError(t, store.Publish(context.Background(), "u1", Event{Type: EventSignedOut}))
}

func TestMemoryStoreRevocationExpires(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "s1", time.Now().Add(-time.Second)))
	revoked, err := store.Revoked(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "s2", time.Now().Add(time.Minute)))
	revoked, err = store.Revoked(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestSignInURL(t *testing.T) {
	providers := map[string]string{
		"github": "https://auth.example/authorize?provider=github",
	}

	got, err := SignInURL(providers, "GitHub", "https://app.example/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example/authorize?provider=github&redirect_to=https%3A%2F%2Fapp.example%2Fdashboard", got)

	_, err = SignInURL(providers, "gitlab", "/")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
