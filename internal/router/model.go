package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emvidros/atendente/internal/provider"
)

// classifyPrompt asks for a single-word verdict so the answer parses without
// a schema. Temperature is whatever the completer was built with; the parse
// falls back to Knowledge on anything unexpected.
const classifyPrompt = `Você é um classificador de intenção para uma vidraçaria.
Classifique a pergunta do cliente em exatamente uma palavra:

SUPPORT   - pergunta sobre entrega, rastreamento ou status de um pedido já feito
KNOWLEDGE - qualquer outra pergunta (produtos, preços, horários, serviços)

Responda somente com SUPPORT ou KNOWLEDGE.`

// ModelClassifier delegates classification to the completion model. It is
// the swappable alternative to RuleClassifier for ambiguous phrasings the
// patterns miss; a model failure degrades to Knowledge instead of dropping
// the question.
type ModelClassifier struct {
	completer provider.Completer
	logger    *slog.Logger
}

// NewModelClassifier creates a model-backed classifier.
func NewModelClassifier(completer provider.Completer, logger *slog.Logger) *ModelClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelClassifier{completer: completer, logger: logger}
}

// Classify asks the model for a one-word verdict.
func (c *ModelClassifier) Classify(ctx context.Context, question string) (Route, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Knowledge, nil
	}

	answer, err := c.completer.Complete(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: classifyPrompt},
		{Role: provider.RoleUser, Content: q},
	})
	if err != nil {
		c.logger.Warn("model classification failed, defaulting to knowledge", "error", err)
		return Knowledge, fmt.Errorf("classify: %w", err)
	}

	if strings.Contains(strings.ToUpper(answer), "SUPPORT") {
		return Support, nil
	}
	return Knowledge, nil
}
