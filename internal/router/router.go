// Package router classifies incoming questions before any retrieval happens.
//
// Delivery and order-status questions are escalated to human support; every
// other question goes through the knowledge pipeline. Classification is
// deterministic for identical input and never fails a question outright:
// anything that cannot be classified defaults to Knowledge.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Route is the classification outcome.
type Route int

const (
	// Knowledge routes the question to retrieval + generation.
	Knowledge Route = iota

	// Support short-circuits to the canned escalation response.
	Support
)

// String implements fmt.Stringer for log output.
func (r Route) String() string {
	if r == Support {
		return "support"
	}
	return "knowledge"
}

// Classifier decides the route for a raw question. Implementations must be
// deterministic and side-effect free.
type Classifier interface {
	Classify(ctx context.Context, question string) (Route, error)
}

// deliveryPatterns match delivery/order-status intent (Brazilian Portuguese,
// matching the shop's audience).
var deliveryPatterns = []string{
	`entrega`,
	`pedido`,
	`envio`,
	`rastreamento`,
	`rastrear`,
	`status`,
	`saiu para entrega`,
	`quando chega`,
	`quando vai chegar`,
	`demora`,
	`atraso`,
	`prazo de entrega`,
	`frete`,
	`transportadora`,
	`correio`,
	`jadlog`,
	`meu produto`,
	`minha compra`,
	`já foi enviado`,
	`quanto tempo`,
	`onde está`,
}

// productPatterns mark general catalog questions that must NOT escalate even
// when a delivery keyword also appears ("qual o prazo de entrega dos
// espelhos?" is still a catalog question when it asks about products).
var productPatterns = []string{
	`quais produtos`,
	`o que vende`,
	`tem vidro`,
	`tem espelho`,
	`preço`,
	`valor`,
	`catálogo`,
	`lista de produtos`,
}

// RuleClassifier is the pattern-matching classifier used in production.
// The zero value is not usable; construct with NewRuleClassifier.
type RuleClassifier struct {
	delivery *regexp.Regexp
	product  *regexp.Regexp
}

// NewRuleClassifier compiles the intent patterns.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		delivery: regexp.MustCompile(`(?i)` + strings.Join(deliveryPatterns, `|`)),
		product:  regexp.MustCompile(`(?i)` + strings.Join(productPatterns, `|`)),
	}
}

// Classify returns Support for delivery-intent questions that carry no
// product-catalog signal, Knowledge for everything else (including empty
// input).
func (c *RuleClassifier) Classify(_ context.Context, question string) (Route, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Knowledge, nil
	}
	if c.delivery.MatchString(q) && !c.product.MatchString(q) {
		return Support, nil
	}
	return Knowledge, nil
}

// SupportResponse builds the fixed escalation message shown for Support
// routes. No model call is involved, which keeps support answers cheap and
// free of hallucination risk.
func SupportResponse(email string) string {
	return fmt.Sprintf(`Para consultas sobre entrega de produtos, status de pedidos ou situação de entrega, por favor entre em contato com nosso suporte:

📧 Email: %s

Nossa equipe terá prazer em ajudá-lo com informações específicas sobre seu pedido e entrega.

Para agilizar o atendimento, tenha em mãos:
- Número do pedido
- CPF/CNPJ do cadastro
- Data da compra
`, email)
}
