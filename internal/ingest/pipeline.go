// Package ingest turns raw sources (web pages, context files) into indexed
// chunks.
//
// Two entry points share the same downstream stages: Crawl walks the shop's
// website breadth-first, Files loads a directory of documents. Each source
// then flows through content hashing (unchanged sources are skipped without
// a single embedding call), overlapping chunking, batched embedding, and an
// atomic per-source chunk replacement in the vector index. One bad page or
// file is logged and skipped; the run continues and reports a summary.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/emvidros/atendente/internal/knowledge"
	"github.com/emvidros/atendente/internal/provider"
)

// Sentinel errors for ingestion runs.
var (
	// ErrSourceFailed marks a single source that could not be ingested.
	ErrSourceFailed = errors.New("source ingestion failed")

	// ErrRunFailed indicates the whole run produced nothing: the crawl
	// target or the vector index was unreachable.
	ErrRunFailed = errors.New("ingestion run failed")
)

// Failure records why one source was skipped.
type Failure struct {
	Source string
	Err    error
}

// Summary reports the outcome of one ingestion run.
type Summary struct {
	Ingested int
	Skipped  int // unchanged content hash
	Failed   int
	Failures []Failure
	Duration time.Duration
}

// VectorIndex is the slice of the knowledge store the pipeline writes to.
type VectorIndex interface {
	ReplaceSource(ctx context.Context, sourceID, contentHash string, chunks []knowledge.Chunk) error
	SourceHash(ctx context.Context, sourceID string) (string, error)
	DeleteSourceType(ctx context.Context, sourceType string) (int64, error)
}

// Pipeline wires the crawl/file front-ends to the chunk-embed-upsert stages.
type Pipeline struct {
	index    VectorIndex
	embedder provider.Embedder
	chunker  *knowledge.Chunker
	crawler  *Crawler
	loader   *Loader
	limiter  *rate.Limiter
	minChars int
	logger   *slog.Logger
}

// Config contains the pipeline dependencies.
type Config struct {
	Index    VectorIndex
	Embedder provider.Embedder
	Chunker  *knowledge.Chunker
	Crawler  *Crawler
	Loader   *Loader
	// EmbedRatePerSec throttles embedding requests. Zero disables the
	// limiter.
	EmbedRatePerSec float64
	// MinChars is the minimum text length for a source to be ingested.
	MinChars int
	Logger   *slog.Logger
}

// New creates an ingestion pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Index == nil {
		return nil, errors.New("vector index is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Chunker == nil {
		cfg.Chunker = knowledge.NewChunker(0, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.EmbedRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSec), 1)
	}

	return &Pipeline{
		index:    cfg.Index,
		embedder: cfg.Embedder,
		chunker:  cfg.Chunker,
		crawler:  cfg.Crawler,
		loader:   cfg.Loader,
		limiter:  limiter,
		minChars: cfg.MinChars,
		logger:   cfg.Logger,
	}, nil
}

// Crawl ingests the website starting at seed. Idempotent: unchanged pages
// are detected by content hash and skipped.
func (p *Pipeline) Crawl(ctx context.Context, seed string) (*Summary, error) {
	if p.crawler == nil {
		return nil, errors.New("pipeline built without a crawler")
	}
	start := time.Now()

	pages, crawlFailures, err := p.crawler.Crawl(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRunFailed, err)
	}

	summary := &Summary{Failures: crawlFailures, Failed: len(crawlFailures)}
	for _, page := range pages {
		meta := map[string]string{
			knowledge.MetaTitle:      page.Title,
			knowledge.MetaURL:        page.URL,
			knowledge.MetaSourceType: knowledge.SourceTypeWebsite,
		}
		if page.Description != "" {
			meta["description"] = page.Description
		}
		p.ingestSource(ctx, summary, page.URL, page.Text, meta)
	}

	summary.Duration = time.Since(start)
	p.report(summary, "crawl", seed)

	if summary.Ingested == 0 && summary.Skipped == 0 && summary.Failed > 0 {
		return summary, fmt.Errorf("%w: no source ingested", ErrRunFailed)
	}
	return summary, nil
}

// CrawlFresh clears every website-sourced chunk and its ingestion record,
// then crawls. Pages that disappeared from the site since the last run are
// gone from the index afterwards; the surviving pages re-embed in full since
// their hash records were cleared too.
func (p *Pipeline) CrawlFresh(ctx context.Context, seed string) (*Summary, error) {
	if p.crawler == nil {
		return nil, errors.New("pipeline built without a crawler")
	}
	removed, err := p.index.DeleteSourceType(ctx, knowledge.SourceTypeWebsite)
	if err != nil {
		return nil, fmt.Errorf("%w: clearing website chunks: %w", ErrRunFailed, err)
	}
	p.logger.Info("cleared website chunks before fresh crawl", "chunks", removed)
	return p.Crawl(ctx, seed)
}

// Files ingests every supported document in dir.
func (p *Pipeline) Files(ctx context.Context, dir string) (*Summary, error) {
	if p.loader == nil {
		return nil, errors.New("pipeline built without a loader")
	}
	start := time.Now()

	files, loadFailures, err := p.loader.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRunFailed, err)
	}

	summary := &Summary{Failures: loadFailures, Failed: len(loadFailures)}
	for _, file := range files {
		meta := map[string]string{
			knowledge.MetaTitle:      file.Name,
			knowledge.MetaSourceType: knowledge.SourceTypeFile,
			"file_type":              file.Type,
		}
		p.ingestSource(ctx, summary, file.Path, file.Text, meta)
	}

	summary.Duration = time.Since(start)
	p.report(summary, "files", dir)

	if summary.Ingested == 0 && summary.Skipped == 0 && summary.Failed > 0 {
		return summary, fmt.Errorf("%w: no source ingested", ErrRunFailed)
	}
	return summary, nil
}

// ingestSource runs the shared stages for one source and tallies the result.
func (p *Pipeline) ingestSource(ctx context.Context, summary *Summary, sourceID, text string, meta map[string]string) {
	ingested, err := p.processSource(ctx, sourceID, text, meta)
	switch {
	case err != nil:
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{Source: sourceID, Err: err})
		p.logger.Warn("source failed", "source", sourceID, "error", err)
	case ingested:
		summary.Ingested++
	default:
		summary.Skipped++
	}
}

// processSource hashes, chunks, embeds, and upserts one source. Returns
// false with a nil error when the source was skipped as unchanged.
func (p *Pipeline) processSource(ctx context.Context, sourceID, text string, meta map[string]string) (bool, error) {
	if len(text) < p.minChars {
		return false, fmt.Errorf("%w: only %d characters of text", ErrSourceFailed, len(text))
	}

	hash := contentHash(text)
	stored, err := p.index.SourceHash(ctx, sourceID)
	if err == nil && stored == hash {
		p.logger.Debug("source unchanged, skipping", "source", sourceID)
		return false, nil
	}
	if err != nil && !errors.Is(err, knowledge.ErrSourceUnknown) {
		return false, fmt.Errorf("%w: checking hash: %w", ErrSourceFailed, err)
	}

	parts := p.chunker.Split(text)
	if len(parts) == 0 {
		return false, fmt.Errorf("%w: no chunks produced", ErrSourceFailed)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("%w: %w", ErrSourceFailed, err)
		}
	}
	vectors, err := p.embedder.Embed(ctx, parts)
	if err != nil {
		return false, fmt.Errorf("%w: embedding: %w", ErrSourceFailed, err)
	}
	if len(vectors) != len(parts) {
		return false, fmt.Errorf("%w: %d vectors for %d chunks", ErrSourceFailed, len(vectors), len(parts))
	}

	now := time.Now()
	chunks := make([]knowledge.Chunk, len(parts))
	for i, content := range parts {
		chunks[i] = knowledge.Chunk{
			ID:         knowledge.ChunkID(sourceID, i),
			SourceID:   sourceID,
			Index:      i,
			Content:    content,
			Embedding:  vectors[i],
			Metadata:   meta,
			IngestedAt: now,
		}
	}

	if err := p.index.ReplaceSource(ctx, sourceID, hash, chunks); err != nil {
		return false, fmt.Errorf("%w: upserting: %w", ErrSourceFailed, err)
	}

	p.logger.Info("ingested source", "source", sourceID, "chunks", len(chunks))
	return true, nil
}

func (p *Pipeline) report(s *Summary, mode, target string) {
	p.logger.Info("ingestion run finished",
		"mode", mode,
		"target", target,
		"ingested", s.Ingested,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"duration", s.Duration)
	for _, f := range s.Failures {
		p.logger.Warn("ingestion failure", "source", f.Source, "error", f.Err)
	}
}

// contentHash fingerprints a source's text for change detection.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
