// Package app wires configuration, storage, the model provider, and the
// pipeline components into one runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emvidros/atendente/db"
	"github.com/emvidros/atendente/internal/assistant"
	"github.com/emvidros/atendente/internal/config"
	"github.com/emvidros/atendente/internal/ingest"
	"github.com/emvidros/atendente/internal/knowledge"
	"github.com/emvidros/atendente/internal/postgres"
	"github.com/emvidros/atendente/internal/provider"
	"github.com/emvidros/atendente/internal/router"
	"github.com/emvidros/atendente/internal/session"
)

// App bundles the wired components. Construct with New, release with Close.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Provider *provider.Client
	Sessions *session.Store
	Index    *knowledge.Store
	Pipeline *ingest.Pipeline
	Engine   *assistant.Engine

	logger *slog.Logger
}

// New connects to PostgreSQL, applies pending migrations, and builds every
// component from the configuration. The returned App owns the pool.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connURL := cfg.DatabaseURL()
	if err := db.Migrate(connURL, logger); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := postgres.Connect(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	client := provider.NewClient(provider.ClientConfig{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.ModelName,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Dimension:      cfg.VectorDimension,
		Timeout:        cfg.RequestTimeout,
		Logger:         logger.With("component", "provider"),
	})

	sessions := session.NewStore(pool, cfg.MaxHistoryTurns, logger.With("component", "session"))
	index := knowledge.NewStore(pool, cfg.VectorDimension, logger.With("component", "knowledge"))

	pipeline, err := ingest.New(ingest.Config{
		Index:    index,
		Embedder: client,
		Chunker:  knowledge.NewChunker(knowledge.DefaultChunkWords, knowledge.DefaultOverlapWords),
		Crawler: ingest.NewCrawler(cfg.MaxPages, cfg.CrawlDelay, cfg.RequestTimeout,
			logger.With("component", "crawler")),
		Loader:          ingest.NewLoader(logger.With("component", "loader")),
		EmbedRatePerSec: cfg.EmbedRatePerSec,
		MinChars:        cfg.MinDocumentChars,
		Logger:          logger.With("component", "ingest"),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building ingestion pipeline: %w", err)
	}

	engine, err := assistant.New(assistant.Config{
		Classifier:   router.NewRuleClassifier(),
		Retriever:    index,
		Embedder:     client,
		Completer:    client,
		Sessions:     sessions,
		TopK:         cfg.TopK,
		MaxHistory:   cfg.MaxHistoryTurns,
		SupportEmail: cfg.SupportEmail,
		Logger:       logger.With("component", "assistant"),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building assistant engine: %w", err)
	}

	return &App{
		Config:   cfg,
		Pool:     pool,
		Provider: client,
		Sessions: sessions,
		Index:    index,
		Pipeline: pipeline,
		Engine:   engine,
		logger:   logger,
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// StartupIngest loads the configured context directory into the index before
// the first question is answered. Disabled via ingest_on_startup=false; an
// empty or missing directory is a no-op.
func (a *App) StartupIngest(ctx context.Context) error {
	if !a.Config.IngestOnStartup || a.Config.ContextDir == "" {
		return nil
	}
	summary, err := a.Pipeline.Files(ctx, a.Config.ContextDir)
	if err != nil {
		return fmt.Errorf("startup ingestion: %w", err)
	}
	a.logger.Info("startup ingestion complete",
		"ingested", summary.Ingested, "skipped", summary.Skipped, "failed", summary.Failed)
	return nil
}

// Stats summarizes what the assistant currently knows.
type Stats struct {
	TotalChunks   int64
	WebsiteChunks int64
	FileChunks    int64
	Sessions      int64
	Model         string
}

// Stats reports index and session counts.
func (a *App) Stats(ctx context.Context) (*Stats, error) {
	total, err := a.Index.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	website, err := a.Index.Count(ctx, map[string]string{knowledge.MetaSourceType: knowledge.SourceTypeWebsite})
	if err != nil {
		return nil, err
	}
	files, err := a.Index.Count(ctx, map[string]string{knowledge.MetaSourceType: knowledge.SourceTypeFile})
	if err != nil {
		return nil, err
	}
	sessions, err := a.Sessions.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalChunks:   total,
		WebsiteChunks: website,
		FileChunks:    files,
		Sessions:      sessions,
		Model:         a.Config.ModelName,
	}, nil
}
