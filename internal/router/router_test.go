package router

import (
	"context"
	"strings"
	"testing"
)

func TestRuleClassifier(t *testing.T) {
	t.Parallel()

	c := NewRuleClassifier()

	tests := []struct {
		name     string
		question string
		want     Route
	}{
		{
			name:     "delivery status",
			question: "Meu produto já saiu para entrega?",
			want:     Support,
		},
		{
			name:     "order tracking",
			question: "Como faço o rastreamento do meu pedido?",
			want:     Support,
		},
		{
			name:     "shipping cost",
			question: "Quanto custa o frete para São Paulo?",
			want:     Support,
		},
		{
			name:     "delay complaint",
			question: "Minha compra está com atraso",
			want:     Support,
		},
		{
			name:     "uppercase delivery keywords",
			question: "ONDE ESTÁ MEU PEDIDO?",
			want:     Support,
		},
		{
			name:     "product catalog question",
			question: "Quais produtos vocês vendem?",
			want:     Knowledge,
		},
		{
			name:     "product question with delivery keyword",
			question: "Qual o prazo de entrega e o preço dos espelhos?",
			want:     Knowledge,
		},
		{
			name:     "general glass question",
			question: "Vocês fazem box de vidro temperado para banheiro?",
			want:     Knowledge,
		},
		{
			name:     "greeting",
			question: "Olá, tudo bem?",
			want:     Knowledge,
		},
		{
			name:     "empty input",
			question: "",
			want:     Knowledge,
		},
		{
			name:     "whitespace only",
			question: "   \t  ",
			want:     Knowledge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := c.Classify(context.Background(), tt.question)
			if err != nil {
				t.Fatalf("Classify(%q) returned error: %v", tt.question, err)
			}
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestRuleClassifierDeterministic(t *testing.T) {
	t.Parallel()

	c := NewRuleClassifier()
	const question = "Quando chega meu pedido?"

	first, err := c.Classify(context.Background(), question)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	for range 10 {
		got, err := c.Classify(context.Background(), question)
		if err != nil {
			t.Fatalf("Classify returned error: %v", err)
		}
		if got != first {
			t.Fatalf("Classify is not deterministic: got %v then %v", first, got)
		}
	}
}

func TestSupportResponse(t *testing.T) {
	t.Parallel()

	const email = "suporte@emvidros.com.br"
	got := SupportResponse(email)

	for _, want := range []string{
		email,
		"Número do pedido",
		"CPF/CNPJ",
		"Data da compra",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("SupportResponse missing %q:\n%s", want, got)
		}
	}
}

func TestRouteString(t *testing.T) {
	t.Parallel()

	if got := Knowledge.String(); got != "knowledge" {
		t.Errorf("Knowledge.String() = %q", got)
	}
	if got := Support.String(); got != "support" {
		t.Errorf("Support.String() = %q", got)
	}
}
