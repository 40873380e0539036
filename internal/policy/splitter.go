package policy

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const DefaultChunkTokens = 500

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int {
	return f(text)
}

// NewTiktokenCounter counts tokens with the BPE encoding of the given
// embedding model. The encoding is fetched and cached by tiktoken-go on
// first use.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer for %s: %w", model, err)
	}
	return TokenCounterFunc(func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}), nil
}

// Splitter packs sentences into chunks of at most maxTokens tokens. A single
// sentence longer than the budget becomes its own chunk.
type Splitter struct {
	counter   TokenCounter
	maxTokens int
}

func NewSplitter(counter TokenCounter, maxTokens int) (*Splitter, error) {
	if counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	return &Splitter{counter: counter, maxTokens: maxTokens}, nil
}

func (s *Splitter) Split(text string) []string {
	var chunks []string
	var current strings.Builder
	size := 0
	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		size = 0
	}

	for _, sentence := range strings.Split(strings.ReplaceAll(text, "\n", " "), ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		sentence = strings.TrimSuffix(sentence, ".") + ". "
		tokens := s.counter.Count(sentence)
		if size > 0 && size+tokens > s.maxTokens {
			flush()
		}
		current.WriteString(sentence)
		size += tokens
	}
	flush()
	return chunks
}
