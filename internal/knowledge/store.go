package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// ErrSourceUnknown indicates no ingestion record exists for a source.
var ErrSourceUnknown = errors.New("source not ingested")

// queryAttempts bounds retries for transient connection failures on reads.
const queryAttempts = 3

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the vector index client. It owns no business logic beyond
// translating upsert/delete/query into SQL against the pgvector schema and
// retrying transient connection failures with bounded backoff.
//
// Store is safe for concurrent use.
type Store struct {
	db        DB
	dimension int
	logger    *slog.Logger
}

// NewStore creates a Store. dimension is the configured embedding length;
// chunks with a different vector length are rejected before hitting the
// database.
func NewStore(db DB, dimension int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dimension: dimension, logger: logger}
}

// ReplaceSource atomically swaps all chunks of a source: prior chunks are
// deleted, the new set inserted, and the ingestion record updated in one
// transaction. Either everything for the source lands or nothing does, so a
// reader never sees stale and fresh chunks mixed for the same document.
func (s *Store) ReplaceSource(ctx context.Context, sourceID, contentHash string, chunks []Chunk) error {
	for _, ch := range chunks {
		if len(ch.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s: embedding has %d dimensions, index expects %d",
				ch.ID, len(ch.Embedding), s.dimension)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("deleting prior chunks of %s: %w", sourceID, err)
	}

	for _, ch := range chunks {
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata of %s: %w", ch.ID, err)
		}
		ingestedAt := ch.IngestedAt
		if ingestedAt.IsZero() {
			ingestedAt = time.Now()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO documents (id, source_id, chunk_index, content, embedding, metadata, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ch.ID, ch.SourceID, ch.Index, ch.Content,
			pgvector.NewVector(ch.Embedding), meta, ingestedAt)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", ch.ID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ingestion_sources (source_id, content_hash, last_ingested_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source_id) DO UPDATE
		SET content_hash = EXCLUDED.content_hash, last_ingested_at = now()`,
		sourceID, contentHash)
	if err != nil {
		return fmt.Errorf("updating ingestion record of %s: %w", sourceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing replace of %s: %w", sourceID, err)
	}

	s.logger.Debug("replaced source", "source", sourceID, "chunks", len(chunks))
	return nil
}

// DeleteSource removes all chunks of a source plus its ingestion record.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", sourceID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ingestion_sources WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("deleting ingestion record of %s: %w", sourceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete of %s: %w", sourceID, err)
	}
	return nil
}

// DeleteSourceType removes every chunk whose metadata carries the given
// source type, together with the matching ingestion records, in one
// transaction. Returns the number of chunks removed. A fresh crawl uses it
// so pages removed from the website do not linger in the index.
func (s *Store) DeleteSourceType(ctx context.Context, sourceType string) (int64, error) {
	filterJSON, err := json.Marshal(map[string]string{MetaSourceType: sourceType})
	if err != nil {
		return 0, fmt.Errorf("marshaling filter: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning clear: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Records go first: the source IDs are only discoverable through the
	// chunk metadata.
	_, err = tx.Exec(ctx, `
		DELETE FROM ingestion_sources WHERE source_id IN (
			SELECT DISTINCT source_id FROM documents WHERE metadata @> $1)`, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("deleting ingestion records of type %s: %w", sourceType, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE metadata @> $1`, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of type %s: %w", sourceType, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing clear of type %s: %w", sourceType, err)
	}

	s.logger.Info("cleared source type", "type", sourceType, "chunks", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// SourceHash returns the stored content hash for a source, or
// ErrSourceUnknown when the source has never been ingested.
func (s *Store) SourceHash(ctx context.Context, sourceID string) (string, error) {
	var hash string
	err := s.db.QueryRow(ctx,
		`SELECT content_hash FROM ingestion_sources WHERE source_id = $1`,
		sourceID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrSourceUnknown, sourceID)
	}
	if err != nil {
		return "", fmt.Errorf("loading hash of %s: %w", sourceID, err)
	}
	return hash, nil
}

// Search returns the chunks closest to the query vector, descending by
// cosine similarity, at most topK entries. Transient connection failures are
// retried up to queryAttempts times before the error surfaces.
func (s *Store) Search(ctx context.Context, vector []float32, opts ...SearchOption) ([]Result, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector has %d dimensions, index expects %d", len(vector), s.dimension)
	}
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var results []Result
	var lastErr error
	delay := 200 * time.Millisecond

	for attempt := 1; attempt <= queryAttempts; attempt++ {
		results, lastErr = s.search(queryCtx, vector, cfg)
		if lastErr == nil {
			return results, nil
		}
		if !transient(lastErr) || attempt == queryAttempts {
			break
		}
		s.logger.Warn("vector search failed, retrying",
			"attempt", attempt, "error", lastErr)
		select {
		case <-queryCtx.Done():
			return nil, fmt.Errorf("vector search canceled: %w", queryCtx.Err())
		case <-time.After(delay):
			delay *= 2
		}
	}
	return nil, fmt.Errorf("vector search: %w", lastErr)
}

func (s *Store) search(ctx context.Context, vector []float32, cfg *searchConfig) ([]Result, error) {
	query := `
		SELECT id, source_id, chunk_index, content, metadata, ingested_at,
		       1 - (embedding <=> $1) AS similarity
		FROM documents`
	args := []any{pgvector.NewVector(vector)}

	if len(cfg.filter) > 0 {
		// Filter is marshaled here, never interpolated; @> with a bind
		// parameter keeps the query injection-safe.
		filterJSON, err := json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
		query += ` WHERE metadata @> $2`
		args = append(args, filterJSON)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, cfg.topK)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var meta []byte
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.SourceID, &r.Chunk.Index,
			&r.Chunk.Content, &meta, &r.Chunk.IngestedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Chunk.Metadata); err != nil {
				s.logger.Warn("unparseable chunk metadata", "chunk", r.Chunk.ID, "error", err)
				r.Chunk.Metadata = map[string]string{}
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of stored chunks, optionally restricted by a
// metadata filter.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int64, error) {
	var count int64
	var err error
	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return 0, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		err = s.db.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE metadata @> $1`, filterJSON).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// transient reports whether err looks like a recoverable connection problem.
// String matching is the documented fallback: pgx surfaces dial and reset
// errors without sentinel values usable from here.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range []string{"connection refused", "connection reset", "broken pipe", "unexpected eof", "conn closed"} {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}
