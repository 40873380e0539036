package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/flightqa/flightqa/internal/prompts"
	"github.com/flightqa/flightqa/internal/textnorm"
)

// Completer is the blocking half of llm.Model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor isolates the luggage sub-question of a mixed question.
type Extractor struct {
	model   Completer
	prompts *prompts.Set
}

func NewExtractor(model Completer, set *prompts.Set) (*Extractor, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if set == nil {
		return nil, fmt.Errorf("prompt set is required")
	}
	return &Extractor{model: model, prompts: set}, nil
}

// Extract returns the luggage sub-question, or ok=false when the model
// answers NONE.
func (e *Extractor) Extract(ctx context.Context, question string) (string, bool, error) {
	prompt, err := e.prompts.LuggageExtract(question)
	if err != nil {
		return "", false, err
	}
	raw, err := e.model.Complete(ctx, prompt)
	if err != nil {
		return "", false, fmt.Errorf("extract luggage question: %w", err)
	}
	extracted := cleanExtraction(raw)
	if extracted == "" || strings.EqualFold(extracted, "NONE") {
		return "", false, nil
	}
	return extracted, true, nil
}

func cleanExtraction(raw string) string {
	text := strings.TrimSpace(textnorm.StripThink(raw))
	text = strings.TrimPrefix(text, "Output:")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"'`))
}
