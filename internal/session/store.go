package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs. Defined by the consumer
// so tests can substitute a transaction or a stub.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists sessions and their turns in PostgreSQL.
//
// Store is safe for concurrent use; callers still must hold the session's
// keyed mutex around read-then-append sequences (see package doc).
type Store struct {
	db       DB
	maxTurns int
	logger   *slog.Logger
}

// NewStore creates a session store. maxTurns caps the history per session;
// values below 1 fall back to the package default.
func NewStore(db DB, maxTurns int, logger *slog.Logger) *Store {
	if maxTurns < 1 {
		maxTurns = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, maxTurns: maxTurns, logger: logger}
}

// Append records one turn, creating the session on first use and evicting
// the oldest turns beyond the cap. The whole operation runs in a single
// transaction so a concurrent reader never observes a partially applied
// append.
func (s *Store) Append(ctx context.Context, sessionID uuid.UUID, turn Turn) error {
	if !ValidRole(turn.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, turn.Role)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET last_active_at = now()`,
		sessionID)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO messages (session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`,
		sessionID, turn.Role, turn.Text, createdAt)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	// FIFO eviction: keep only the newest maxTurns rows.
	_, err = tx.Exec(ctx, `
		DELETE FROM messages
		WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		)`,
		sessionID, s.maxTurns)
	if err != nil {
		return fmt.Errorf("evicting old turns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended turn", "session", sessionID, "role", turn.Role)
	return nil
}

// History returns the session's turns, oldest first. A session with no turns
// (or one never seen) yields an empty slice, not an error: first messages in
// a conversation have no history yet.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]Turn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT role, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return turns, nil
}

// Clear removes all turns of a session but keeps the session row.
func (s *Store) Clear(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clearing session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session and, via cascade, its turns.
func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

// Get returns one session's metadata.
func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT s.id, s.created_at, s.last_active_at,
		       (SELECT count(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s WHERE s.id = $1`,
		sessionID).Scan(&sess.ID, &sess.CreatedAt, &sess.LastActiveAt, &sess.TurnCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// List returns sessions ordered by recency.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.created_at, s.last_active_at,
		       (SELECT count(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.last_active_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.LastActiveAt, &sess.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sessions: %w", err)
	}
	return sessions, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// PurgeIdle deletes sessions whose last activity is older than maxAge and
// returns how many were removed. Administrative operation, used by the CLI.
func (s *Store) PurgeIdle(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM sessions WHERE last_active_at < $1`,
		time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("purging idle sessions: %w", err)
	}
	s.logger.Info("purged idle sessions", "count", tag.RowsAffected(), "max_age", maxAge)
	return tag.RowsAffected(), nil
}
