// Package llm adapts language-model backends to the two calls the pipeline
// needs: a blocking completion and a live fragment stream.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Model is a text-in, text-out language model.
type Model interface {
	// Complete waits for the full response to prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream delivers response fragments to onFragment as they arrive.
	// Returning an error from onFragment stops the stream and is returned.
	Stream(ctx context.Context, prompt string, onFragment func(fragment string) error) error
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// New builds the Model selected by cfg.Provider.
func New(cfg Config) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		return NewOpenAIModel(cfg)
	case ProviderOllama:
		return NewOllamaModel(cfg)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func timeoutOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
