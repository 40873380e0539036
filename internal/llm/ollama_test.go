package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

type scriptedLLM struct {
	chunks      []string
	err         error
	temperature float64
}

func (s *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func (s *scriptedLLM) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	s.temperature = opts.Temperature
	if s.err != nil {
		return nil, s.err
	}
	if opts.StreamingFunc != nil {
		for _, chunk := range s.chunks {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: strings.Join(s.chunks, "")}}}, nil
}

func TestLangChainModelComplete(t *testing.T) {
	fake := &scriptedLLM{chunks: []string{"What is the ", "baggage allowance?"}}
	model := NewLangChainModel(fake, 0.2, time.Second)

	out, err := model.Complete(context.Background(), "extract")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "What is the baggage allowance?" {
		t.Fatalf("Complete() = %q", out)
	}
	if fake.temperature != 0.2 {
		t.Fatalf("temperature = %v, want 0.2", fake.temperature)
	}
}

func TestLangChainModelStream(t *testing.T) {
	fake := &scriptedLLM{chunks: []string{"one ", "", "two."}}
	model := NewLangChainModel(fake, 0, 0)

	var got []string
	if err := model.Stream(context.Background(), "p", func(fragment string) error {
		got = append(got, fragment)
		return nil
	}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(got, "|") != "one |two." {
		t.Fatalf("fragments = %q", got)
	}
}

func TestLangChainModelStreamPropagatesCallbackError(t *testing.T) {
	fake := &scriptedLLM{chunks: []string{"a", "b"}}
	model := NewLangChainModel(fake, 0, 0)
	stop := errors.New("stop")

	err := model.Stream(context.Background(), "p", func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("Stream() error = %v, want %v", err, stop)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewOllamaModelRequiresModel(t *testing.T) {
	if _, err := NewOllamaModel(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
