package config

import "fmt"

// Validate checks configuration ranges. It is called by Load and again by
// components that receive a fixture Config in tests.
func (c *Config) Validate() error {
	if c.VectorDimension < 1 || c.VectorDimension > 16000 {
		return fmt.Errorf("%w: %d (must be 1-16000)", ErrInvalidDimension, c.VectorDimension)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidTopK, c.TopK)
	}
	if c.MaxHistoryTurns < 1 || c.MaxHistoryTurns > MaxAllowedHistoryTurns {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidMaxHistory, c.MaxHistoryTurns, MaxAllowedHistoryTurns)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("%w: max_pages %d", ErrInvalidCrawl, c.MaxPages)
	}
	if c.CrawlDelay < 0 {
		return fmt.Errorf("%w: crawl_delay %s", ErrInvalidCrawl, c.CrawlDelay)
	}
	if c.PostgresHost == "" || c.PostgresDBName == "" || c.PostgresUser == "" {
		return fmt.Errorf("%w: host, user and db name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidPostgres, c.PostgresPort)
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no provider key is configured.
// Commands that never call the model (e.g. sessions admin) skip this check.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: set OPENROUTER_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
