// Package provider abstracts the hosted model capabilities the assistant
// depends on: text embedding and chat completion.
//
// Both are remote OpenAI-compatible APIs (OpenRouter in production). The
// interfaces exist so tests can substitute deterministic fakes and so the
// completion backend can be swapped without touching the RAG engine.
package provider

import "context"

// Message roles accepted by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces a single assistant reply for an ordered message list.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Embedder converts texts into fixed-length vectors. Every returned vector
// has Dimension() elements; callers rely on this matching the vector index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
