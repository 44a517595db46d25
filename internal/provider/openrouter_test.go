package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emvidros/atendente/internal/log"
)

// fastRetry keeps test retries quick.
func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, baseURL string, dim int) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "test-model",
		EmbeddingModel: "test-embedding",
		Temperature:    0.7,
		MaxTokens:      100,
		Dimension:      dim,
		Timeout:        5 * time.Second,
		Retry:          fastRetry(),
		Logger:         log.NewNop(),
	})
}

func TestCompleteSendsHeadersAndBody(t *testing.T) {
	t.Parallel()

	var gotReq completionRequest
	var gotAuth, gotReferer, gotTitle string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"resposta"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	got, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "pergunta"},
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "resposta" {
		t.Errorf("Complete = %q, want %q", got, "resposta")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReferer == "" || gotTitle == "" {
		t.Errorf("identification headers missing: referer=%q title=%q", gotReferer, gotTitle)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Errorf("request body = %+v", gotReq)
	}
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	got, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Complete returned error after retries: %v", err)
	}
	if got != "ok" {
		t.Errorf("Complete = %q", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestCompleteRetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err == nil {
		t.Fatal("Complete succeeded, want error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q does not mention status", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1 (no retry on 4xx)", n)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}); err == nil {
		t.Fatal("Complete succeeded with empty choices, want error")
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q, want /embeddings", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Dimensions != 3 {
			t.Errorf("dimensions = %d, want 3", req.Dimensions)
		}
		// Out-of-order data must land at the right positions.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.4,0.5,0.6]},
			{"index":0,"embedding":[0.1,0.2,0.3]}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.4 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	if _, err := c.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("Embed accepted a 2-dimensional vector for a 3-dimensional index")
	}
}

func TestEmbedRejectsCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("Embed accepted 1 vector for 2 inputs")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "http://unused.invalid", 3)
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil) returned error: %v", err)
	}
	if vecs != nil {
		t.Errorf("Embed(nil) = %v, want nil", vecs)
	}
}
