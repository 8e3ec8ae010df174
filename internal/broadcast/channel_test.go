package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/envelope"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

type recorder struct {
	mu  sync.Mutex
	got []envelope.Envelope
}

func (r *recorder) receive(e envelope.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recorder) envelopes() []envelope.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]envelope.Envelope(nil), r.got...)
}

func TestChannelDeliversToSiblingTabs(t *testing.T) {
	bus := NewLocalBus()
	log := logger.NewNop()

	var a, b recorder
	tabA := Open(bus, "tab-a", "u1", a.receive, log)
	tabB := Open(bus, "tab-b", "u1", b.receive, log)
	defer tabA.Close()
	defer tabB.Close()

	tabA.Publish(context.Background(), envelope.Delete("42"))

	assert.Empty(t, a.envelopes(), "sender must not see its own echo")
	got := b.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, envelope.TypeDelete, got[0].Type)
	assert.Equal(t, "42", got[0].ID)
	assert.Equal(t, "tab-a", got[0].TabID)
	assert.Equal(t, "u1", got[0].UserID)
}

func TestChannelDropsOtherUsers(t *testing.T) {
	bus := NewLocalBus()
	log := logger.NewNop()

	var mine recorder
	tab := Open(bus, "tab-a", "u1", mine.receive, log)
	other := Open(bus, "tab-x", "u2", func(envelope.Envelope) {}, log)
	defer tab.Close()
	defer other.Close()

	other.Publish(context.Background(), envelope.AddFailed("m1"))
	assert.Empty(t, mine.envelopes())
}

func TestChannelIgnoresMalformed(t *testing.T) {
	bus := NewLocalBus()
	var r recorder
	tab := Open(bus, "tab-a", "u1", r.receive, logger.NewNop())
	defer tab.Close()

	ctx := context.Background()
	for _, msg := range []string{
		`not json`,
		`{"type":"bookmark_rename","tabId":"t","userId":"u1"}`,
		`{"type":"delete","tabId":"t","userId":"u1"}`,
		`{"type":"add_confirmed","tabId":"t","userId":"u1","mutationId":"m"}`,
	} {
		require.NoError(t, bus.Publish(ctx, []byte(msg)))
	}
	assert.Empty(t, r.envelopes())

	require.NoError(t, bus.Publish(ctx, []byte(`{"type":"bookmark_delete","tabId":"t","userId":"u1","id":"9"}`)))
	assert.Len(t, r.envelopes(), 1)
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	bus := NewLocalBus()
	var r recorder
	tab := Open(bus, "tab-a", "u1", r.receive, logger.NewNop())
	sender := Open(bus, "tab-b", "u1", func(envelope.Envelope) {}, logger.NewNop())
	defer sender.Close()

	require.Equal(t, 2, bus.Subscribers())
	tab.Close()
	tab.Close()
	assert.Equal(t, 1, bus.Subscribers())

	sender.Publish(context.Background(), envelope.Delete("1"))
	assert.Empty(t, r.envelopes())

	// publishing from a closed tab is a no-op
	tab.Publish(context.Background(), envelope.Delete("1"))
}

type failingBus struct{ LocalBus }

func (failingBus) Publish(context.Context, []byte) error { return errors.New("boom") }

func TestChannelPublishFailureIsSwallowed(t *testing.T) {
	bus := &failingBus{LocalBus: *NewLocalBus()}
	tab := Open(bus, "tab-a", "u1", func(envelope.Envelope) {}, logger.NewNop())
	defer tab.Close()

	assert.NotPanics(t, func() {
		tab.Publish(context.Background(), envelope.AddOptimistic(domain.Bookmark{
			ID:               domain.OptimisticID("m1"),
			ClientMutationID: "m1",
		}))
	})
}

func TestLocalBusClosed(t *testing.T) {
	bus := NewLocalBus()
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), []byte("x")), ErrClosed)

	cancel := bus.Subscribe(func([]byte) {})
	cancel()
	assert.Equal(t, 0, bus.Subscribers())
}

func TestNewTabIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewTabID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
