// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (ATENDENTE_* plus OPENROUTER_API_KEY/DATABASE_URL)
//  2. Config file (./config.yaml or ~/.atendente/config.yaml)
//  3. Defaults
//
// The resulting Config struct is immutable after Load and is injected into
// each component at construction. Business logic never reads the environment
// directly, which keeps tests deterministic with fixture configs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Load and Validate.
var (
	// ErrMissingAPIKey indicates the model provider API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidMaxHistory indicates the session history cap is out of range.
	ErrInvalidMaxHistory = errors.New("invalid max history")

	// ErrInvalidCrawl indicates crawl settings are out of range.
	ErrInvalidCrawl = errors.New("invalid crawl settings")

	// ErrInvalidPostgres indicates the PostgreSQL settings are incomplete.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL settings")

	// ErrInvalidDatabaseURL indicates DATABASE_URL could not be parsed.
	ErrInvalidDatabaseURL = errors.New("invalid DATABASE_URL")
)

// History bounds. Appends beyond MaxHistoryTurns evict the oldest turns.
const (
	DefaultMaxHistoryTurns = 10
	MaxAllowedHistoryTurns = 1000
)

// Config stores the full application configuration.
//
// SECURITY: APIKey and PostgresPassword are sensitive; they are never logged.
type Config struct {
	// Model provider (OpenRouter or any OpenAI-compatible endpoint)
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	ModelName      string  `mapstructure:"model_name"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`

	// Retrieval
	VectorDimension int `mapstructure:"vector_dimension"`
	TopK            int `mapstructure:"top_k"`

	// Conversation memory
	MaxHistoryTurns int `mapstructure:"max_history_turns"`

	// Storage (PostgreSQL with pgvector)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Ingestion
	WebsiteURL       string        `mapstructure:"website_url"`
	MaxPages         int           `mapstructure:"max_pages"`
	CrawlDelay       time.Duration `mapstructure:"crawl_delay"`
	ContextDir       string        `mapstructure:"context_dir"`
	IngestOnStartup  bool          `mapstructure:"ingest_on_startup"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	EmbedRatePerSec  float64       `mapstructure:"embed_rate_per_sec"`
	MinDocumentChars int           `mapstructure:"min_document_chars"`

	// Support escalation
	SupportEmail string `mapstructure:"support_email"`
}

// Load reads configuration with priority env > file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".atendente"))
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* fields when set.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := cfg.applyDatabaseURL(dbURL); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("model_name", "moonshotai/kimi-k2:free")
	v.SetDefault("embedding_model", "text-embedding-3-large")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2000)

	v.SetDefault("vector_dimension", 3072)
	v.SetDefault("top_k", 5)
	v.SetDefault("max_history_turns", DefaultMaxHistoryTurns)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "atendente")
	v.SetDefault("postgres_db_name", "atendente")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("website_url", "https://emvidros.com.br")
	v.SetDefault("max_pages", 100)
	v.SetDefault("crawl_delay", time.Second)
	v.SetDefault("context_dir", "./context")
	v.SetDefault("ingest_on_startup", true)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("embed_rate_per_sec", 5.0)
	v.SetDefault("min_document_chars", 50)

	v.SetDefault("support_email", "suporte@emvidros.com.br")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ATENDENTE")
	v.AutomaticEnv()

	// Conventional variable names from the hosting environment.
	_ = v.BindEnv("api_key", "OPENROUTER_API_KEY", "ATENDENTE_API_KEY")
	_ = v.BindEnv("base_url", "OPENAI_BASE_URL", "ATENDENTE_BASE_URL")
	_ = v.BindEnv("model_name", "MODEL_NAME", "ATENDENTE_MODEL_NAME")
}

// applyDatabaseURL overrides the postgres_* fields from a postgres:// URL.
func (c *Config) applyDatabaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidDatabaseURL, u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrInvalidDatabaseURL, port)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if len(u.Path) > 1 {
		c.PostgresDBName = u.Path[1:]
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// DatabaseURL builds the postgres:// connection URL from the individual
// fields. Used by both the pgx pool and golang-migrate.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
