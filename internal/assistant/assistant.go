// Package assistant orchestrates one question through the full pipeline:
// route, retrieve, generate, record.
//
// A request moves through a fixed sequence of states. After routing, support
// questions short-circuit to the canned escalation message with no retrieval
// and no model call. Knowledge questions are embedded, matched against the
// vector index, assembled into a grounded prompt together with the session's
// bounded history, and answered with a single completion call. Both the
// question and the answer land in session memory; a failed generation leaves
// the question recorded and the answer absent, so the transcript shows what
// was asked even when nothing came back.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emvidros/atendente/internal/knowledge"
	"github.com/emvidros/atendente/internal/provider"
	"github.com/emvidros/atendente/internal/router"
	"github.com/emvidros/atendente/internal/session"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrRetrievalUnavailable indicates the question could not be embedded
	// or the vector index could not be queried.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationFailed indicates the model call failed after retrieval
	// succeeded. The user turn is already recorded when this surfaces.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// systemPrompt frames every knowledge answer. Brazilian Portuguese, grounded
// answers only, no invented prices or products.
const systemPrompt = `Você é um assistente virtual inteligente da EM Vidros, uma empresa especializada em vidros e espelhos.

MISSÃO:
- Responder perguntas sobre produtos, serviços e informações da EM Vidros
- Ser prestativo, cordial e profissional
- Fornecer informações precisas baseadas no contexto disponível

REGRAS:
1. Responda APENAS com base nas informações fornecidas no contexto
2. Se não souber a resposta, diga honestamente que não tem essa informação
3. Não invente informações sobre preços, produtos ou serviços
4. Mantenha um tom profissional e amigável
5. Responda em português do Brasil
6. Seja conciso mas completo nas respostas

CONTEXTO:
EM Vidros é uma empresa do ramo de vidraçaria, oferecendo produtos e serviços relacionados a vidros e espelhos.`

// noContextMarker is injected in place of retrieved passages when the index
// returns nothing, so the model declines honestly instead of inventing.
const noContextMarker = "Nenhum trecho relevante foi encontrado nos documentos da empresa para esta pergunta. Informe ao cliente, com honestidade, que essa informação não está disponível no momento."

// Source identifies one cited passage in an answer.
type Source struct {
	SourceID   string
	Title      string
	URL        string
	Similarity float32
}

// Answer is the outcome of one question.
type Answer struct {
	Text      string
	Route     router.Route
	Sources   []Source
	SessionID uuid.UUID
}

// SessionStore is the slice of the session store the engine uses.
type SessionStore interface {
	Append(ctx context.Context, sessionID uuid.UUID, turn session.Turn) error
	History(ctx context.Context, sessionID uuid.UUID) ([]session.Turn, error)
}

// Retriever is the slice of the vector index the engine queries.
type Retriever interface {
	Search(ctx context.Context, vector []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Engine answers customer questions. Safe for concurrent use; turns of the
// same session are serialized internally.
type Engine struct {
	classifier   router.Classifier
	retriever    Retriever
	embedder     provider.Embedder
	completer    provider.Completer
	sessions     SessionStore
	locks        *session.KeyedMutex
	topK         int
	maxHistory   int
	supportEmail string
	logger       *slog.Logger
}

// Config carries the engine dependencies and tuning knobs.
type Config struct {
	Classifier   router.Classifier
	Retriever    Retriever
	Embedder     provider.Embedder
	Completer    provider.Completer
	Sessions     SessionStore
	TopK         int
	MaxHistory   int
	SupportEmail string
	Logger       *slog.Logger
}

// New creates an Engine. All dependencies are required.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Classifier == nil:
		return nil, errors.New("classifier is required")
	case cfg.Retriever == nil:
		return nil, errors.New("retriever is required")
	case cfg.Embedder == nil:
		return nil, errors.New("embedder is required")
	case cfg.Completer == nil:
		return nil, errors.New("completer is required")
	case cfg.Sessions == nil:
		return nil, errors.New("session store is required")
	}
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	if cfg.MaxHistory < 1 {
		cfg.MaxHistory = 10
	}
	if cfg.SupportEmail == "" {
		cfg.SupportEmail = "suporte@emvidros.com.br"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		classifier:   cfg.Classifier,
		retriever:    cfg.Retriever,
		embedder:     cfg.Embedder,
		completer:    cfg.Completer,
		sessions:     cfg.Sessions,
		locks:        session.NewKeyedMutex(),
		topK:         cfg.TopK,
		maxHistory:   cfg.MaxHistory,
		supportEmail: cfg.SupportEmail,
		logger:       cfg.Logger,
	}, nil
}

// Chat answers one question within a session. Concurrent calls for the same
// session are serialized so interleaved turns never corrupt the transcript.
func (e *Engine) Chat(ctx context.Context, sessionID uuid.UUID, question string) (*Answer, error) {
	// Blank input is not dropped: the classifier resolves it to the
	// knowledge route and the model responds like any other turn.
	question = strings.TrimSpace(question)

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	route, err := e.classifier.Classify(ctx, question)
	if err != nil {
		// Misrouting a support question to knowledge is recoverable;
		// dropping the question is not.
		e.logger.Warn("classification failed, defaulting to knowledge", "error", err)
		route = router.Knowledge
	}
	e.logger.Debug("routed question", "session", sessionID, "route", route)

	if route == router.Support {
		return e.answerSupport(ctx, sessionID, question)
	}
	return e.answerKnowledge(ctx, sessionID, question)
}

// Query answers one question without any session: no history, nothing
// recorded. Used by the one-shot ask command.
func (e *Engine) Query(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)

	route, err := e.classifier.Classify(ctx, question)
	if err != nil {
		e.logger.Warn("classification failed, defaulting to knowledge", "error", err)
		route = router.Knowledge
	}
	if route == router.Support {
		return &Answer{Text: router.SupportResponse(e.supportEmail), Route: router.Support}, nil
	}

	results, err := e.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	text, err := e.generate(ctx, nil, results, question)
	if err != nil {
		return nil, err
	}
	return &Answer{Text: text, Route: router.Knowledge, Sources: cited(results)}, nil
}

// answerSupport records the exchange and returns the fixed escalation text.
// No retrieval, no model call.
func (e *Engine) answerSupport(ctx context.Context, sessionID uuid.UUID, question string) (*Answer, error) {
	text := router.SupportResponse(e.supportEmail)

	if err := e.sessions.Append(ctx, sessionID, session.NewUserTurn(question)); err != nil {
		return nil, fmt.Errorf("recording question: %w", err)
	}
	if err := e.sessions.Append(ctx, sessionID, session.NewAssistantTurn(text)); err != nil {
		return nil, fmt.Errorf("recording escalation: %w", err)
	}

	return &Answer{Text: text, Route: router.Support, SessionID: sessionID}, nil
}

func (e *Engine) answerKnowledge(ctx context.Context, sessionID uuid.UUID, question string) (*Answer, error) {
	history, err := e.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if len(history) > e.maxHistory {
		history = history[len(history)-e.maxHistory:]
	}

	results, err := e.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	// The question is recorded before generation: if the model call fails,
	// the transcript still shows what was asked.
	if err := e.sessions.Append(ctx, sessionID, session.NewUserTurn(question)); err != nil {
		return nil, fmt.Errorf("recording question: %w", err)
	}

	text, err := e.generate(ctx, history, results, question)
	if err != nil {
		return nil, err
	}

	if err := e.sessions.Append(ctx, sessionID, session.NewAssistantTurn(text)); err != nil {
		return nil, fmt.Errorf("recording answer: %w", err)
	}

	return &Answer{
		Text:      text,
		Route:     router.Knowledge,
		Sources:   cited(results),
		SessionID: sessionID,
	}, nil
}

// retrieve embeds the question and queries the vector index.
func (e *Engine) retrieve(ctx context.Context, question string) ([]knowledge.Result, error) {
	start := time.Now()
	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding question: %w", ErrRetrievalUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: %d vectors for one question", ErrRetrievalUnavailable, len(vectors))
	}

	results, err := e.retriever.Search(ctx, vectors[0], knowledge.WithTopK(e.topK))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}
	e.logger.Debug("retrieved passages", "count", len(results), "elapsed", time.Since(start))
	return results, nil
}

// generate runs the single completion call over the assembled prompt.
func (e *Engine) generate(ctx context.Context, history []session.Turn, results []knowledge.Result, question string) (string, error) {
	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt + "\n\n" + contextBlock(results),
	})
	for _, turn := range history {
		role := provider.RoleUser
		if turn.Role == session.RoleAssistant {
			role = provider.RoleAssistant
		}
		messages = append(messages, provider.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: question})

	text, err := e.completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: model returned empty text", ErrGenerationFailed)
	}
	return text, nil
}

// contextBlock formats the retrieved passages for the system prompt, each
// labeled with its source for citation.
func contextBlock(results []knowledge.Result) string {
	if len(results) == 0 {
		return "CONTEXTO RECUPERADO:\n" + noContextMarker
	}

	var sb strings.Builder
	sb.WriteString("CONTEXTO RECUPERADO:\n")
	for _, r := range results {
		title := r.Chunk.Metadata[knowledge.MetaTitle]
		if title == "" {
			title = "Documento"
		}
		fmt.Fprintf(&sb, "\n[Fonte: %s - %s]\n%s\n",
			title, r.Chunk.Metadata[knowledge.MetaURL], r.Chunk.Content)
	}
	return sb.String()
}

// cited collapses results into the per-source citation list, deduplicated by
// source and ordered by best similarity first (results arrive ordered).
func cited(results []knowledge.Result) []Source {
	seen := make(map[string]bool, len(results))
	var sources []Source
	for _, r := range results {
		if seen[r.Chunk.SourceID] {
			continue
		}
		seen[r.Chunk.SourceID] = true
		sources = append(sources, Source{
			SourceID:   r.Chunk.SourceID,
			Title:      r.Chunk.Metadata[knowledge.MetaTitle],
			URL:        r.Chunk.Metadata[knowledge.MetaURL],
			Similarity: r.Similarity,
		})
	}
	return sources
}
