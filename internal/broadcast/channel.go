package broadcast

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/envelope"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/metrics"
)

// Channel is one tab's handle on the bus.
//
// Outgoing envelopes are stamped with the tab and user. Incoming messages
// that are malformed, belong to another user or originated from this tab
// are dropped; everything else is handed to the receive callback.
type Channel struct {
	bus    Bus
	tabID  string
	userID string
	recv   func(envelope.Envelope)
	log    logger.Logger

	mu     sync.RWMutex
	closed bool
	cancel func()
}

// Open attaches a tab to bus. recv runs on the bus delivery goroutine.
func Open(bus Bus, tabID, userID string, recv func(envelope.Envelope), log logger.Logger) *Channel {
	c := &Channel{
		bus:    bus,
		tabID:  tabID,
		userID: userID,
		recv:   recv,
		log:    log,
	}
	c.cancel = bus.Subscribe(c.receive)
	return c
}

// TabID returns the identifier stamped on outgoing envelopes.
func (c *Channel) TabID() string { return c.tabID }

// Publish sends e to the sibling tabs. Failures are logged and counted,
// never returned: the local fold has already happened.
func (c *Channel) Publish(ctx context.Context, e envelope.Envelope) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		c.log.Debug("publish on closed broadcast channel",
			logger.String("tab", c.tabID),
			logger.String("type", string(e.Type)))
		return
	}

	data, err := envelope.Encode(e.Stamp(c.tabID, c.userID))
	if err == nil {
		err = c.bus.Publish(ctx, data)
	}
	if err != nil {
		metrics.BroadcastPublishFailures.Inc()
		c.log.Warn("broadcast publish failed",
			logger.String("tab", c.tabID),
			logger.String("type", string(e.Type)),
			logger.String("correlation", e.CorrelationID()),
			logger.Error(err))
	}
}

func (c *Channel) receive(data []byte) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	e, ok := envelope.Decode(data)
	switch {
	case !ok:
		metrics.BroadcastDropped.WithLabelValues("malformed").Inc()
		return
	case e.UserID != c.userID:
		metrics.BroadcastDropped.WithLabelValues("foreign_user").Inc()
		return
	case e.TabID == c.tabID:
		// self-echo
		return
	}

	c.recv(e)
}

// Close detaches the tab. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
