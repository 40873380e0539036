package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/prompts"
	"github.com/flightqa/flightqa/internal/textnorm"
)

const (
	maxSections   = 3
	noMatchText   = "No specific information found in the policy document."
	sectionMarker = "\n\n"
)

// Answer is the rendered policy text for one airline.
type Answer struct {
	Airline string `json:"airline"`
	Text    string `json:"text"`
}

func (a Answer) String() string {
	return fmt.Sprintf("%s (%s)", a.Text, a.Airline)
}

// Service looks up airline policy documents and renders answers with the
// luggage model. Lookup never fails: every problem degrades to a fixed
// message or the raw policy text.
type Service struct {
	catalog *Catalog
	source  DocumentSource
	model   Completer
	prompts *prompts.Set
	index   *Index
	logger  *slog.Logger
	docs    sync.Map
}

// NewService builds a policy service. A nil model is allowed for callers that
// only warm the embedding cache; Lookup then answers with the raw policy text.
func NewService(catalog *Catalog, source DocumentSource, model Completer, set *prompts.Set, logger *slog.Logger) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if set == nil {
		return nil, fmt.Errorf("prompt set is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: catalog, source: source, model: model, prompts: set, logger: logger}, nil
}

// WithIndex enables semantic fallback when no section matches by keyword.
func (s *Service) WithIndex(index *Index) *Service {
	s.index = index
	return s
}

func (s *Service) Lookup(ctx context.Context, airlineName, question string) string {
	airline, ok := s.catalog.Find(airlineName)
	if !ok || airline.PolicyFile == "" {
		s.degrade(ctx, "unknown_airline", airlineName, nil)
		return fmt.Sprintf("I apologize, but I don't have any policy information available for %s.", airlineName)
	}

	document, err := s.Document(ctx, airline)
	if err != nil {
		s.degrade(ctx, "missing_document", airline.Name, err)
		return fmt.Sprintf("I apologize, but I couldn't find the policy document for %s.", airline.Name)
	}

	relevant := RelevantSections(document, question, maxSections)
	if len(relevant) == 0 && s.index != nil {
		chunks, err := s.index.Search(ctx, airline.Name, document, question, maxSections)
		if err != nil {
			s.degrade(ctx, "semantic_search", airline.Name, err)
		} else {
			relevant = chunks
		}
	}
	relevantText := strings.Join(relevant, sectionMarker)
	if relevantText == "" {
		relevantText = noMatchText
	}
	return s.render(ctx, airline.Name, question, relevantText)
}

// Document returns the policy text of airline, reading through the
// process-wide cache. Missing documents are not cached.
func (s *Service) Document(ctx context.Context, airline Airline) (string, error) {
	if cached, ok := s.docs.Load(airline.Name); ok {
		return cached.(string), nil
	}
	text, err := s.source.Document(ctx, airline)
	if err != nil {
		return "", err
	}
	s.docs.Store(airline.Name, text)
	return text, nil
}

// Warm builds the embedding cache of every documented airline.
func (s *Service) Warm(ctx context.Context) error {
	if s.index == nil {
		return fmt.Errorf("semantic index is not configured")
	}
	var errs []error
	for _, airline := range s.catalog.Documented() {
		document, err := s.Document(ctx, airline)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", airline.Name, err))
			continue
		}
		entry, err := s.index.Entry(ctx, airline.Name, document)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", airline.Name, err))
			continue
		}
		s.logger.InfoContext(ctx, "embedding cache ready",
			slog.String("airline", airline.Name),
			slog.Int("chunks", len(entry.Chunks)),
		)
	}
	return errors.Join(errs...)
}

func (s *Service) render(ctx context.Context, airline, question, relevantText string) string {
	fallback := fmt.Sprintf("According to %s's policy: %s", airline, relevantText)
	if s.model == nil {
		s.degrade(ctx, "no_model", airline, nil)
		return fallback
	}
	prompt, err := s.prompts.LuggageRender(airline, question, relevantText)
	if err != nil {
		s.degrade(ctx, "render", airline, err)
		return fallback
	}
	raw, err := s.model.Complete(ctx, prompt)
	if err != nil {
		s.degrade(ctx, "render", airline, err)
		return fallback
	}
	rendered := strings.TrimSpace(textnorm.StripThink(raw))
	if rendered == "" {
		s.degrade(ctx, "render", airline, errors.New("empty model response"))
		return fallback
	}
	return rendered
}

func (s *Service) degrade(ctx context.Context, reason, airline string, err error) {
	observability.IncrementPolicyDegradation(reason)
	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("airline", airline),
		slog.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.WarnContext(ctx, "policy_degraded", attrs...)
}

// RelevantSections splits document on blank lines and keeps the first limit
// sections containing any whitespace-separated word of question.
func RelevantSections(document, question string, limit int) []string {
	keywords := strings.Fields(strings.ToLower(question))
	if len(keywords) == 0 || limit <= 0 {
		return nil
	}
	document = strings.ReplaceAll(document, "\r\n", "\n")

	var out []string
	for _, section := range strings.Split(document, sectionMarker) {
		lowered := strings.ToLower(section)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				out = append(out, section)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out
}
