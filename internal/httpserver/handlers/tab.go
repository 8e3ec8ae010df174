package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
	"github.com/MrSnakeDoc/marksync/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 8 << 10
	noticeBuffer   = 16
	closeSignedOut = "signed out"
)

// Client ops.
const (
	OpCreate = "create"
	OpDelete = "delete"
	OpFilter = "filter"
)

// Server frame types.
const (
	FrameSnapshot  = "snapshot"
	FrameNotice    = "notice"
	FrameSignedOut = "signed_out"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type clientFrame struct {
	Op    string `json:"op"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	ID    string `json:"id,omitempty"`
	Query string `json:"query,omitempty"`
}

type entryFrame struct {
	domain.Bookmark
	Pending bool `json:"pending,omitempty"`
}

type snapshotFrame struct {
	Type    string       `json:"type"`
	Entries []entryFrame `json:"entries"`
	Query   string       `json:"query"`
	Count   int          `json:"count"`
	Total   int          `json:"total"`
	Version uint64       `json:"version"`

	LoadedAt time.Time `json:"loadedAt"`
}

type noticeFrame struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type signedOutFrame struct {
	Type     string `json:"type"`
	Redirect string `json:"redirect"`
}

// Tab upgrades a signed-in request to a websocket and runs one view over
// it until either side goes away. Signed-out requests are redirected.
func Tab(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     mw.CheckOrigin(d.AllowedOrigins, d.Logger),
	}
	limiter := mw.NewLimiter(mw.RateLimitConfig{
		Burst:  d.RateLimitBurst,
		Refill: d.RateLimitRefill,
	})

	return func(w http.ResponseWriter, r *http.Request) {
		s, err := d.Sessions.CurrentUser(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) {
				d.Logger.Error("failed to resolve session", logger.Error(err))
			}
			http.Redirect(w, r, d.SignedOutURL, http.StatusFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// the upgrader has already replied
			d.Logger.Debug("websocket upgrade failed", logger.Error(err))
			return
		}
		defer conn.Close()

		view, err := session.Open(r.Context(), d.Views, s)
		if err != nil {
			d.Logger.Error("failed to open view",
				logger.String("user", s.User.ID),
				logger.Error(err))
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(noticeFrame{Type: FrameNotice, Level: LevelError, Message: "Failed to load bookmarks"})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "load failed"),
				time.Now().Add(writeWait))
			return
		}
		defer view.Close()

		t := &tab{
			conn:         conn,
			view:         view,
			limiter:      limiter,
			signedOutURL: d.SignedOutURL,
			closing:      d.Closing,
			log:          logger.With(d.Logger, logger.String("tab", view.TabID()), logger.String("user", s.User.ID)),
			notices:      make(chan noticeFrame, noticeBuffer),
			refresh:      make(chan struct{}, 1),
		}
		t.run()
	}
}

// tab pumps one websocket. The read pump decodes ops; the write pump is the
// only writer on the connection.
type tab struct {
	conn         *websocket.Conn
	view         *session.View
	limiter      *mw.Limiter
	signedOutURL string
	closing      <-chan struct{}
	log          logger.Logger

	mu    sync.Mutex
	query string

	notices chan noticeFrame
	refresh chan struct{}
	wg      sync.WaitGroup
}

func (t *tab) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		t.readPump(ctx)
	}()

	t.writePump(ctx)
	cancel()
	// unblocks the read pump
	_ = t.conn.Close()
	<-readDone
	t.wg.Wait()
}

func (t *tab) readPump(ctx context.Context) {
	t.conn.SetReadLimit(maxFrameSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Debug("tab read failed", logger.Error(err))
			}
			return
		}

		var f clientFrame
		if err := json.Unmarshal(message, &f); err != nil {
			t.notify(ctx, LevelWarn, "Malformed message")
			continue
		}
		t.handle(ctx, f)
	}
}

func (t *tab) handle(ctx context.Context, f clientFrame) {
	switch f.Op {
	case OpFilter:
		t.mu.Lock()
		t.query = f.Query
		t.mu.Unlock()
		t.requestSnapshot()

	case OpCreate, OpDelete:
		if ok, _, retry := t.limiter.Allow(t.view.User().ID); !ok {
			t.notify(ctx, LevelWarn, fmt.Sprintf("Too many changes, retry in %ds", int(math.Ceil(retry.Seconds()))))
			return
		}
		// mutations run concurrently; each one folds into the view on its own
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.mutate(ctx, f)
		}()

	default:
		t.notify(ctx, LevelWarn, fmt.Sprintf("Unknown op %q", f.Op))
	}
}

func (t *tab) mutate(ctx context.Context, f clientFrame) {
	var err error
	if f.Op == OpCreate {
		_, err = t.view.Create(ctx, f.Title, f.URL)
	} else {
		err = t.view.Delete(ctx, f.ID)
	}
	if err == nil {
		return
	}

	var mErr *orchestrator.MutationError
	switch {
	case errors.Is(err, domain.ErrValidation):
		t.notify(ctx, LevelWarn, err.Error())
	case errors.Is(err, orchestrator.ErrPending):
		t.notify(ctx, LevelInfo, "Bookmark is still saving")
	case errors.As(err, &mErr) && mErr.Op == orchestrator.OpCreate:
		t.notify(ctx, LevelError, "Failed to save bookmark")
	case errors.As(err, &mErr):
		t.notify(ctx, LevelError, "Failed to delete bookmark")
	default:
		t.notify(ctx, LevelError, err.Error())
	}
}

func (t *tab) notify(ctx context.Context, level, message string) {
	select {
	case t.notices <- noticeFrame{Type: FrameNotice, Level: level, Message: message}:
	case <-ctx.Done():
	}
}

func (t *tab) requestSnapshot() {
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

func (t *tab) writePump(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := t.write(t.snapshot()); err != nil {
		return
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return

		case <-t.closing:
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return

		case <-t.view.Done():
			if t.view.SignedOut() {
				_ = t.write(signedOutFrame{Type: FrameSignedOut, Redirect: t.signedOutURL})
				_ = t.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeSignedOut),
					time.Now().Add(writeWait))
			}
			return

		case <-t.view.Changes():
			err = t.write(t.snapshot())
		case <-t.refresh:
			err = t.write(t.snapshot())
		case n := <-t.notices:
			err = t.write(n)

		case <-ping.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = t.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			t.log.Debug("tab write failed", logger.Error(err))
			return
		}
	}
}

func (t *tab) write(v any) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *tab) snapshot() snapshotFrame {
	t.mu.Lock()
	query := t.query
	t.mu.Unlock()

	listing := t.view.Bookmarks(query)
	entries := make([]entryFrame, len(listing.Entries))
	for i, b := range listing.Entries {
		entries[i] = entryFrame{Bookmark: b, Pending: b.IsOptimistic()}
	}
	return snapshotFrame{
		Type:    FrameSnapshot,
		Entries: entries,
		Query:   listing.Query,
		Count:   listing.Count,
		Total:   listing.Total,
		Version: listing.Version,

		LoadedAt: listing.LoadedAt,
	}
}
