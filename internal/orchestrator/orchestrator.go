package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/envelope"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/metrics"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
)

// Mutation operations.
const (
	OpCreate = "create"
	OpDelete = "delete"
)

// ErrPending is returned when deleting an entry whose create has not been
// confirmed yet.
var ErrPending = errors.New("bookmark is still being saved")

// MutationError reports a durable write that failed after its optimistic
// fold. The local list has already been put back.
type MutationError struct {
	Op  string
	ID  string // bookmark id for deletes, correlation id for creates
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s bookmark %s: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Sink is the view a mutation runs against: its list and its broadcast
// channel.
type Sink interface {
	Apply(e envelope.Envelope) (changed bool, version uint64)
	Publish(ctx context.Context, e envelope.Envelope)
	Capture(id string) (domain.Bookmark, reconcile.Snapshot, bool)
	Restore(snap reconcile.Snapshot, b domain.Bookmark, appliedAt uint64)
}

// Orchestrator runs the optimistic create and delete flows. Mutations are
// independent; nothing here serializes them.
type Orchestrator struct {
	store   backend.Bookmarks
	sink    Sink
	timeout time.Duration
	log     logger.Logger

	newID func() string
	now   func() time.Time
}

func New(store backend.Bookmarks, sink Sink, timeout time.Duration, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		sink:    sink,
		timeout: timeout,
		log:     log,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// durable bounds a backend call. In-flight writes are not cancelled when
// the caller goes away; their completion folds into a closed view as a no-op.
func (o *Orchestrator) durable(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) emit(ctx context.Context, e envelope.Envelope) uint64 {
	_, version := o.sink.Apply(e)
	o.sink.Publish(ctx, e)
	return version
}

// Create validates the input, shows a placeholder immediately and swaps it
// for the durable row once the insert returns. Validation errors change
// nothing.
func (o *Orchestrator) Create(ctx context.Context, user domain.User, title, rawURL string) (domain.Bookmark, error) {
	in, err := domain.ValidateInput(title, rawURL)
	if err != nil {
		metrics.MutationsTotal.WithLabelValues(OpCreate, "invalid").Inc()
		return domain.Bookmark{}, err
	}

	mutationID := o.newID()
	placeholder := domain.Bookmark{
		ID:               domain.OptimisticID(mutationID),
		UserID:           user.ID,
		Title:            in.Title,
		URL:              in.URL,
		CreatedAt:        o.now(),
		ClientMutationID: mutationID,
	}
	o.emit(ctx, envelope.AddOptimistic(placeholder))

	callCtx, cancel := o.durable(ctx)
	defer cancel()

	start := time.Now()
	row, err := o.store.InsertBookmark(callCtx, backend.NewBookmark{
		UserID:     user.ID,
		Title:      in.Title,
		URL:        in.URL,
		MutationID: mutationID,
	})
	metrics.MutationDuration.WithLabelValues(OpCreate).Observe(time.Since(start).Seconds())

	if err != nil {
		o.emit(ctx, envelope.AddFailed(mutationID))
		metrics.MutationsTotal.WithLabelValues(OpCreate, "failed").Inc()
		o.log.Warn("bookmark insert failed",
			logger.String("user", user.ID),
			logger.String("mutation", mutationID),
			logger.Error(err))
		return domain.Bookmark{}, &MutationError{Op: OpCreate, ID: mutationID, Err: err}
	}

	row.ClientMutationID = ""
	o.emit(ctx, envelope.AddConfirmed(mutationID, row))
	metrics.MutationsTotal.WithLabelValues(OpCreate, "confirmed").Inc()
	o.log.Debug("bookmark created",
		logger.String("user", user.ID),
		logger.String("mutation", mutationID),
		logger.String("id", row.ID))
	return row, nil
}

// Delete removes id immediately and restores it if the durable delete
// fails. An id this view does not hold still gets the durable delete.
func (o *Orchestrator) Delete(ctx context.Context, user domain.User, id string) error {
	if domain.IsOptimistic(id) {
		metrics.MutationsTotal.WithLabelValues(OpDelete, "pending").Inc()
		return &MutationError{Op: OpDelete, ID: id, Err: ErrPending}
	}

	target, snap, found := o.sink.Capture(id)
	appliedAt := o.emit(ctx, envelope.Delete(id))

	callCtx, cancel := o.durable(ctx)
	defer cancel()

	start := time.Now()
	err := o.store.DeleteBookmark(callCtx, user.ID, id)
	metrics.MutationDuration.WithLabelValues(OpDelete).Observe(time.Since(start).Seconds())

	if err != nil {
		if found {
			o.sink.Restore(snap, target, appliedAt)
			o.sink.Publish(ctx, envelope.DeleteRollback(target))
		}
		metrics.MutationsTotal.WithLabelValues(OpDelete, "rolled_back").Inc()
		o.log.Warn("bookmark delete failed",
			logger.String("user", user.ID),
			logger.String("id", id),
			logger.Bool("restored", found),
			logger.Error(err))
		return &MutationError{Op: OpDelete, ID: id, Err: err}
	}

	metrics.MutationsTotal.WithLabelValues(OpDelete, "confirmed").Inc()
	return nil
}
