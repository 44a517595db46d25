package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures the retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for hosted model APIs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// errStatus marks HTTP-level failures so retryable() can inspect the code.
type errStatus struct {
	code int
	body string
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.code, e.body)
}

// retryablePatterns groups transient error substrings, matched
// case-insensitively against err.Error(). String matching is used because
// net/http and the provider expose no typed errors for these cases.
var retryablePatterns = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"temporary",
	"eof",
}

// retryable reports whether err is transient and worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var st *errStatus
	if errors.As(err, &st) {
		return st.code == 429 || st.code >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range retryablePatterns {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}

// withRetry runs fn with exponential backoff. Context cancellation aborts
// between attempts; non-retryable errors fail immediately.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialInterval

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return fmt.Errorf("after %d retries: %w", cfg.MaxRetries, lastErr)
}
