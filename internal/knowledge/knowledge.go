// Package knowledge stores document chunks with their embeddings and answers
// similarity queries over them.
//
// Chunks live in PostgreSQL with pgvector; similarity is cosine over
// normalized vectors. Chunks are immutable once written: re-ingesting a
// source replaces its whole chunk set atomically instead of updating rows in
// place.
package knowledge

import "time"

// Metadata keys used across ingestion and retrieval.
const (
	MetaTitle      = "title"
	MetaURL        = "url"
	MetaSourceType = "source_type"
)

// Source type values stored under MetaSourceType.
const (
	SourceTypeWebsite = "website"
	SourceTypeFile    = "file"
)

// Chunk is one bounded slice of a source document together with its
// embedding vector. (SourceID, Index) is unique; ID is derived from it.
type Chunk struct {
	ID         string
	SourceID   string
	Index      int
	Content    string
	Embedding  []float32
	Metadata   map[string]string
	IngestedAt time.Time
}

// Result is one retrieval hit.
type Result struct {
	Chunk      Chunk
	Similarity float32 // cosine similarity, higher is closer
}

// SearchOption configures Search via functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results. Default 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter restricts results to chunks whose metadata contains key=value.
// Multiple filters combine with AND.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout bounds the search query. Default 10s.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
