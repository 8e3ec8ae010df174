package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// NotifyChannel is the LISTEN/NOTIFY channel fed by the bookmarks trigger.
const NotifyChannel = "marksync_changes"

//go:embed schema.sql
var schema string

var _ backend.Service = (*Store)(nil)

// Store is the PostgreSQL implementation of the bookmark backend.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
	log  logger.Logger
}

// Open connects to Postgres, retrying with exponential backoff until
// connectTimeout elapses.
func Open(ctx context.Context, dsn string, connectTimeout time.Duration, log logger.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		log.Warn("postgres connection failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", next),
			logger.Error(err))
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unavailable after %d attempts: %w", attempt, err)
	}

	log.Info("connected to postgres", logger.Int("attempts", attempt))
	return &Store{pool: pool, dsn: dsn, log: log}, nil
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ListBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id::text, user_id, title, url, created_at, coalesce(client_mutation_id, '')
        FROM bookmarks WHERE user_id=$1
        ORDER BY created_at DESC, id DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	out := []domain.Bookmark{}
	for rows.Next() {
		var b domain.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.URL, &b.CreatedAt, &b.ClientMutationID); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return out, nil
}

func (s *Store) InsertBookmark(ctx context.Context, in backend.NewBookmark) (domain.Bookmark, error) {
	b := domain.Bookmark{
		UserID:           in.UserID,
		Title:            in.Title,
		URL:              in.URL,
		ClientMutationID: in.MutationID,
	}
	row := s.pool.QueryRow(ctx, `
        INSERT INTO bookmarks (user_id, title, url, client_mutation_id)
        VALUES ($1, $2, $3, NULLIF($4, ''))
        RETURNING id::text, created_at
    `, in.UserID, in.Title, in.URL, in.MutationID)
	if err := row.Scan(&b.ID, &b.CreatedAt); err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return b, nil
}

// DeleteBookmark removes the user's row. Unknown, malformed or foreign ids
// are reported as backend.ErrNotFound.
func (s *Store) DeleteBookmark(ctx context.Context, userID, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, id)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM bookmarks WHERE id=$1 AND user_id=$2`, n, userID)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, id)
	}
	return nil
}

// connectListener opens a dedicated connection for LISTEN; pooled
// connections cannot hold a notification subscription.
func (s *Store) connectListener(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	return conn, nil
}
