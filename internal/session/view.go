package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/broadcast"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/envelope"
	"github.com/MrSnakeDoc/marksync/internal/feed"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/metrics"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
)

// Watcher streams session events for a user.
type Watcher interface {
	Watch(ctx context.Context, userID string) (<-chan auth.Event, func(), error)
}

// Store is the part of the backend a view needs.
type Store interface {
	backend.Bookmarks
	backend.ChangeFeed
}

// Deps are the shared collaborators of every view.
type Deps struct {
	Store           Store
	Bus             broadcast.Bus
	Sessions        Watcher
	MutationTimeout time.Duration
	Log             logger.Logger
}

// Listing is a filtered read of the list.
type Listing struct {
	Entries []domain.Bookmark
	Query   string
	Count   int // entries matching Query
	Total   int // all entries
	Version uint64

	// LoadedAt is when the initial load completed.
	LoadedAt time.Time
}

// View is one open tab of a signed-in user. It owns the tab's reconciled
// list; the broadcast channel, the change feed and the orchestrator only
// submit folds to it.
type View struct {
	user      domain.User
	sessionID string
	tabID     string

	list    *reconcile.List
	channel *broadcast.Channel
	feed    *feed.Listener
	orch    *orchestrator.Orchestrator
	log     logger.Logger

	cancel    context.CancelFunc
	stopWatch func()
	closed    atomic.Bool
	signedOut atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Open attaches a tab: broadcast channel and change feed first so nothing
// published during the initial load is missed, then the load itself.
// Whatever was acquired is released if a later step fails.
func Open(ctx context.Context, deps Deps, s auth.Session) (_ *View, err error) {
	viewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	v := &View{
		user:      s.User,
		sessionID: s.ID,
		tabID:     broadcast.NewTabID(),
		list:      reconcile.NewList(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	v.log = logger.With(deps.Log,
		logger.String("tab", v.tabID),
		logger.String("user", v.user.ID))

	defer func() {
		if err != nil {
			v.release()
		}
	}()

	v.channel = broadcast.Open(deps.Bus, v.tabID, v.user.ID, v.receive, v.log)

	v.feed = feed.NewListener(deps.Store, v, v.log)
	// Without a feed the tab still works; it only misses remote changes.
	_ = v.feed.Switch(viewCtx, &v.user)

	events, stop, err := deps.Sessions.Watch(viewCtx, v.user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to watch session: %w", err)
	}
	v.stopWatch = stop

	rows, err := deps.Store.ListBookmarks(ctx, v.user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}
	v.list.Seed(rows)
	metrics.FoldsTotal.WithLabelValues(metrics.SourceLoad, "seed", metrics.Changed(true)).Inc()

	v.orch = orchestrator.New(deps.Store, v, deps.MutationTimeout, v.log)

	go v.watch(events)

	metrics.ViewsOpen.Inc()
	v.log.Info("view opened", logger.Int("bookmarks", len(rows)))
	return v, nil
}

func (v *View) watch(events <-chan auth.Event) {
	for e := range events {
		if e.Type != auth.EventSignedOut {
			continue
		}
		if e.SessionID != "" && e.SessionID != v.sessionID {
			continue
		}
		v.signedOut.Store(true)
		v.log.Info("session signed out, closing view")
		v.Close()
		return
	}
}

// Close tears the tab down. Durable calls still in flight complete into a
// closed view as no-ops. Safe to call more than once.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.release()
		metrics.ViewsOpen.Dec()
		v.log.Info("view closed")
	})
}

// release runs once: from Close, or from a failed Open before the view
// escapes.
func (v *View) release() {
	v.closed.Store(true)
	if v.stopWatch != nil {
		v.stopWatch()
	}
	if v.channel != nil {
		v.channel.Close()
	}
	if v.feed != nil {
		v.feed.Close()
	}
	v.cancel()
	close(v.done)
}

// Done is closed when the view is closed or its session signs out.
func (v *View) Done() <-chan struct{} { return v.done }

// SignedOut reports whether the view ended because its session signed out.
func (v *View) SignedOut() bool { return v.signedOut.Load() }

func (v *View) User() domain.User { return v.user }

func (v *View) TabID() string { return v.tabID }

// Changes signals that the list changed since the last read.
func (v *View) Changes() <-chan struct{} { return v.list.Changes() }

// Create runs the optimistic create flow.
func (v *View) Create(ctx context.Context, title, rawURL string) (domain.Bookmark, error) {
	return v.orch.Create(ctx, v.user, title, rawURL)
}

// Delete runs the optimistic delete flow.
func (v *View) Delete(ctx context.Context, id string) error {
	return v.orch.Delete(ctx, v.user, id)
}

// Bookmarks returns the entries matching query, newest first.
func (v *View) Bookmarks(query string) Listing {
	snap := v.list.Snapshot()
	entries := reconcile.Filter(snap.Entries, query)
	return Listing{
		Entries: entries,
		Query:   query,
		Count:   len(entries),
		Total:   len(snap.Entries),
		Version: snap.Version,

		LoadedAt: v.list.LoadedAt(),
	}
}

// Count returns the number of entries.
func (v *View) Count() int { return v.list.Count() }

// Apply folds a local envelope. It is a no-op once the view is closed.
func (v *View) Apply(e envelope.Envelope) (bool, uint64) {
	if v.closed.Load() {
		return false, v.list.Version()
	}
	changed, version := v.list.Apply(e)
	metrics.FoldsTotal.WithLabelValues(metrics.SourceLocal, string(e.Type), metrics.Changed(changed)).Inc()
	return changed, version
}

// Publish broadcasts a local envelope to sibling tabs.
func (v *View) Publish(ctx context.Context, e envelope.Envelope) {
	if v.closed.Load() {
		return
	}
	v.channel.Publish(ctx, e)
}

func (v *View) Capture(id string) (domain.Bookmark, reconcile.Snapshot, bool) {
	return v.list.Capture(id)
}

func (v *View) Restore(snap reconcile.Snapshot, b domain.Bookmark, appliedAt uint64) {
	if v.closed.Load() {
		return
	}
	v.list.Restore(snap, b, appliedAt)
	metrics.FoldsTotal.WithLabelValues(metrics.SourceLocal, "restore", metrics.Changed(true)).Inc()
}

// Insert folds a change feed insert.
func (v *View) Insert(b domain.Bookmark) bool {
	if v.closed.Load() {
		return false
	}
	changed := v.list.Insert(b)
	metrics.FoldsTotal.WithLabelValues(metrics.SourceFeed, "insert", metrics.Changed(changed)).Inc()
	return changed
}

// Remove folds a change feed delete.
func (v *View) Remove(id string) bool {
	if v.closed.Load() {
		return false
	}
	changed := v.list.Remove(id)
	metrics.FoldsTotal.WithLabelValues(metrics.SourceFeed, "delete", metrics.Changed(changed)).Inc()
	return changed
}

func (v *View) receive(e envelope.Envelope) {
	if v.closed.Load() {
		return
	}
	changed, _ := v.list.Apply(e)
	metrics.FoldsTotal.WithLabelValues(metrics.SourceBroadcast, string(e.Type), metrics.Changed(changed)).Inc()
}
