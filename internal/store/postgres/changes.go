package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// SubscribeToChanges holds one LISTEN connection per subscriber and filters
// notifications by user.
func (s *Store) SubscribeToChanges(ctx context.Context, userID string, onInsert func(domain.Bookmark), onDelete func(string)) (backend.Subscription, error) {
	conn, err := s.connectListener(ctx)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub := &listener{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(loopCtx, s.log, func(payload string) {
		var c backend.Change
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			s.log.Warn("ignoring malformed notification", logger.Error(err))
			return
		}
		c.Dispatch(userID, onInsert, onDelete)
	})

	return sub, nil
}

type listener struct {
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (l *listener) run(ctx context.Context, log logger.Logger, handle func(string)) {
	defer close(l.done)

	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				log.Error("change feed connection lost", logger.Error(err))
			}
			return
		}
		handle(n.Payload)
	}
}

// Unsubscribe stops the listener and closes its connection. No callback
// runs after it returns.
func (l *listener) Unsubscribe() error {
	l.once.Do(func() {
		l.cancel()
		<-l.done
		l.err = l.conn.Close(context.Background())
	})
	return l.err
}
