// Package testutil provides shared test doubles and infrastructure.
//
// The fakes here are deterministic: the embedder derives a vector from the
// text itself, so equal texts embed equally across runs and tests never need
// a real model endpoint.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/emvidros/atendente/internal/log"
	"github.com/emvidros/atendente/internal/provider"
)

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() log.Logger { return log.NewNop() }

// FakeEmbedder is a deterministic provider.Embedder for tests. It records
// every call so tests can assert how often (and with what) it was invoked.
type FakeEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls [][]string
}

// NewFakeEmbedder creates a fake embedder producing vectors of dim length.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{Dim: dim}
}

// Embed returns one deterministic vector per text, derived from the text's
// hash and normalized to unit length.
func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = DeterministicVector(text, f.Dim)
	}
	return vecs, nil
}

// Dimension implements provider.Embedder.
func (f *FakeEmbedder) Dimension() int { return f.Dim }

// Calls returns how many Embed invocations happened.
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// TextsEmbedded returns every text passed to Embed, in call order.
func (f *FakeEmbedder) TextsEmbedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []string
	for _, call := range f.calls {
		all = append(all, call...)
	}
	return all
}

// DeterministicVector derives a unit vector from text. Equal texts always
// produce equal vectors.
func DeterministicVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Cycle through the digest, offset by position so short digests
		// still fill long vectors without repetition.
		b := binary.BigEndian.Uint32(sum[(i*4)%(len(sum)-4) : (i*4)%(len(sum)-4)+4])
		v := float32(b%1000)/1000 - 0.5 + float32(i)*1e-6
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// FakeCompleter is a scripted provider.Completer. Responses are returned in
// order; when the script runs out the last response repeats.
type FakeCompleter struct {
	Responses []string
	Err       error

	mu    sync.Mutex
	calls [][]provider.Message
}

// Complete returns the next scripted response and records the messages.
func (f *FakeCompleter) Complete(_ context.Context, messages []provider.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, messages)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "", fmt.Errorf("fake completer has no scripted responses")
	}
	idx := len(f.calls) - 1
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	return f.Responses[idx], nil
}

// Calls returns how many Complete invocations happened.
func (f *FakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// LastMessages returns the messages of the most recent Complete call, or nil.
func (f *FakeCompleter) LastMessages() []provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}
