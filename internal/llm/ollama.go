package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangChainModel wraps any langchaingo model. The default backend is a local
// Ollama server.
type LangChainModel struct {
	llm         llms.Model
	temperature float64
	timeout     time.Duration
}

func NewOllamaModel(cfg Config) (*LangChainModel, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewLangChainModel(client, cfg.Temperature, cfg.Timeout), nil
}

func NewLangChainModel(model llms.Model, temperature float64, timeout time.Duration) *LangChainModel {
	return &LangChainModel{
		llm:         model,
		temperature: temperature,
		timeout:     timeoutOr(timeout, 90*time.Second),
	}
}

func (m *LangChainModel) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, llms.WithTemperature(m.temperature))
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	return out, nil
}

func (m *LangChainModel) Stream(ctx context.Context, prompt string, onFragment func(string) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithTemperature(m.temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onFragment(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("stream completion: %w", err)
	}
	return nil
}
