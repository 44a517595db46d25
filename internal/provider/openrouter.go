package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Identification headers sent with every OpenRouter request.
const (
	refererHeader = "https://emvidros.com.br"
	titleHeader   = "EM Vidros AI Assistant"
)

// maxResponseBody caps how much of an error body is read for diagnostics.
const maxResponseBody = 1 << 20

// Client calls an OpenAI-compatible chat/embedding API. It implements both
// Completer and Embedder and is safe for concurrent use.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	dimension      int
	httpClient     *http.Client
	retry          RetryConfig
	logger         *slog.Logger
}

// ClientConfig contains the required parameters for Client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Dimension      int
	Timeout        time.Duration
	Retry          RetryConfig // zero value uses DefaultRetryConfig
	Logger         *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		dimension:      cfg.Dimension,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		retry:          cfg.Retry,
		logger:         cfg.Logger,
	}
}

// Dimension returns the configured embedding dimensionality.
func (c *Client) Dimension() int { return c.dimension }

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to complete")
	}

	reqBody := completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var out completionResponse
	start := time.Now()
	err := withRetry(ctx, c.retry, func() error {
		return c.post(ctx, "/chat/completions", reqBody, &out)
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}

	c.logger.Debug("completion finished",
		"model", c.model,
		"messages", len(messages),
		"elapsed", time.Since(start))
	return out.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed converts texts into vectors with a single batched request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{
		Model: c.embeddingModel,
		Input: texts,
	}
	// text-embedding-3 models honor the dimensions parameter; it keeps the
	// vectors aligned with the index schema.
	if c.dimension > 0 {
		reqBody.Dimensions = c.dimension
	}

	var out embeddingResponse
	err := withRetry(ctx, c.retry, func() error {
		return c.post(ctx, "/embeddings", reqBody, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(out.Data), len(texts))
	}

	vecs := make([][]float32, len(out.Data))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding: index %d out of range", d.Index)
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("embedding: got %d dimensions, want %d", len(d.Embedding), c.dimension)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// post sends a JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", refererHeader)
	req.Header.Set("X-Title", titleHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return &errStatus{code: resp.StatusCode, body: string(bytes.TrimSpace(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
