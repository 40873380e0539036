// Package answer drives one question through classification, SQL
// generation, execution and policy augmentation, and streams the composed
// answer as typed events.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/flightqa/flightqa/internal/classify"
	"github.com/flightqa/flightqa/internal/flights"
	"github.com/flightqa/flightqa/internal/nl2sql"
	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/policy"
	"github.com/flightqa/flightqa/internal/prompts"
	"github.com/flightqa/flightqa/internal/rowlit"
)

const (
	SQLChunkRunes        = 10
	DefaultSQLChunkDelay = 50 * time.Millisecond

	notFlightMessage = "Query not related to flight data. Please ask about flights, prices, routes, or travel dates."
	noFlightsMessage = "No flights found for the given route."
)

var (
	ErrNotFlightRelated = errors.New("question not related to flight data")
	ErrNoFlights        = errors.New("no flights found")
)

type EventType string

const (
	EventSQL    EventType = "sql"
	EventAnswer EventType = "answer"
	EventError  EventType = "error"
)

type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Sink receives events in emission order. An error means the consumer is
// gone and the stream stops without further events.
type Sink func(Event) error

type SQLGenerator interface {
	Generate(ctx context.Context, question string) (nl2sql.Result, error)
}

type Executor interface {
	Run(ctx context.Context, sql string) (string, error)
}

type StreamModel interface {
	Stream(ctx context.Context, prompt string, onFragment func(fragment string) error) error
}

type LuggageExtractor interface {
	Extract(ctx context.Context, question string) (string, bool, error)
}

type PolicyLookup interface {
	Lookup(ctx context.Context, airline, question string) string
}

type Dependencies struct {
	Generator SQLGenerator
	Executor  Executor
	Model     StreamModel
	Extractor LuggageExtractor
	Policies  PolicyLookup
	Airlines  AllowList
	Prompts   *prompts.Set
	Logger    *slog.Logger
	// SQLChunkDelay paces sql events. Zero disables pacing.
	SQLChunkDelay time.Duration
}

type Composer struct {
	deps Dependencies
}

func NewComposer(deps Dependencies) (*Composer, error) {
	switch {
	case deps.Generator == nil:
		return nil, fmt.Errorf("sql generator is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("executor is required")
	case deps.Model == nil:
		return nil, fmt.Errorf("answer model is required")
	case deps.Prompts == nil:
		return nil, fmt.Errorf("prompt set is required")
	case deps.SQLChunkDelay < 0:
		return nil, fmt.Errorf("sql chunk delay must not be negative")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Composer{deps: deps}, nil
}

// clientGone marks errors raised by the sink or by cancellation. They end the
// stream without an error event.
type clientGone struct{ err error }

func (e *clientGone) Error() string { return e.err.Error() }
func (e *clientGone) Unwrap() error { return e.err }

// Stream answers question, delivering events to sink. A pipeline failure
// produces exactly one error event and is returned. When the sink fails or
// ctx is cancelled no further events are sent and the cause is returned.
func (c *Composer) Stream(ctx context.Context, question string, sink Sink) error {
	started := time.Now()
	logger := c.deps.Logger.With(slog.String("trace_id", observability.TraceIDFromContext(ctx)))
	emit := func(event Event) error {
		if err := ctx.Err(); err != nil {
			return &clientGone{err: err}
		}
		if err := sink(event); err != nil {
			return &clientGone{err: err}
		}
		observability.IncrementStreamEvent(string(event.Type))
		return nil
	}

	err := c.run(ctx, question, emit, logger)
	outcome := outcomeOf(err)
	observability.IncrementStreamOutcome(outcome)

	var gone *clientGone
	switch {
	case err == nil:
		logger.InfoContext(ctx, "answer_streamed", slog.Duration("elapsed", time.Since(started)))
		return nil
	case errors.As(err, &gone):
		logger.InfoContext(ctx, "answer_stream_abandoned", slog.String("error", gone.err.Error()))
		return gone.err
	}

	logger.WarnContext(ctx, "answer_stream_failed",
		slog.String("outcome", outcome),
		slog.String("error", err.Error()),
	)
	if emitErr := emit(Event{Type: EventError, Content: ErrorMessage(err)}); emitErr != nil {
		logger.InfoContext(ctx, "answer_stream_abandoned", slog.String("error", emitErr.Error()))
	}
	return err
}

func (c *Composer) run(ctx context.Context, question string, emit func(Event) error, logger *slog.Logger) error {
	if !classify.IsFlightRelated(question) {
		return ErrNotFlightRelated
	}

	result, err := c.deps.Generator.Generate(ctx, question)
	if err != nil {
		return asClientGone(ctx, err)
	}
	if err := c.streamSQL(ctx, result.SQL, emit); err != nil {
		return err
	}

	literal, err := c.deps.Executor.Run(ctx, result.SQL)
	if err != nil {
		if !errors.Is(err, flights.ErrExecution) {
			err = fmt.Errorf("%w: %w", flights.ErrExecution, err)
		}
		return asClientGone(ctx, err)
	}
	rows, err := rowlit.Parse(literal)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNoFlights
	}

	policies, err := c.augment(ctx, question, rows, logger)
	if err != nil {
		return err
	}

	prompt, err := c.deps.Prompts.Response(question, result.SQL, rowlit.Format(toValues(rows)), policies)
	if err != nil {
		return err
	}
	return c.streamAnswer(ctx, prompt, policies, emit)
}

func (c *Composer) streamSQL(ctx context.Context, sql string, emit func(Event) error) error {
	for i, chunk := range chunkRunes(sql, SQLChunkRunes) {
		if i > 0 && c.deps.SQLChunkDelay > 0 {
			if err := sleep(ctx, c.deps.SQLChunkDelay); err != nil {
				return &clientGone{err: err}
			}
		}
		if err := emit(Event{Type: EventSQL, Content: chunk}); err != nil {
			return err
		}
	}
	return nil
}

// augment returns one "<answer> (<airline>)" entry per allow-listed airline
// of the result set when the question carries a luggage sub-question.
func (c *Composer) augment(ctx context.Context, question string, rows []rowlit.Row, logger *slog.Logger) ([]string, error) {
	if c.deps.Extractor == nil || c.deps.Policies == nil || !classify.IsLuggageRelated(question) {
		return nil, nil
	}
	subQuestion, ok, err := c.deps.Extractor.Extract(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &clientGone{err: ctx.Err()}
		}
		observability.IncrementPolicyDegradation("extract")
		logger.WarnContext(ctx, "luggage_extraction_failed", slog.String("error", err.Error()))
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	var out []string
	for _, airline := range Airlines(rows, c.deps.Airlines) {
		text := c.deps.Policies.Lookup(ctx, airline, subQuestion)
		if err := ctx.Err(); err != nil {
			return nil, &clientGone{err: err}
		}
		out = append(out, policy.Answer{Airline: airline, Text: text}.String())
		logger.DebugContext(ctx, "policy_answered", slog.String("airline", airline))
	}
	return out, nil
}

func (c *Composer) streamAnswer(ctx context.Context, prompt string, policies []string, emit func(Event) error) error {
	var filter thinkFilter
	var buffer strings.Builder
	push := func(visible string) error {
		buffer.WriteString(visible)
		if !endsAtBoundary(buffer.String()) {
			return nil
		}
		content := buffer.String()
		buffer.Reset()
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return emit(Event{Type: EventAnswer, Content: content})
	}

	err := c.deps.Model.Stream(ctx, prompt, func(fragment string) error {
		return push(filter.Write(fragment))
	})
	if err != nil {
		var gone *clientGone
		if errors.As(err, &gone) {
			return gone
		}
		return asClientGone(ctx, fmt.Errorf("stream answer: %w", err))
	}
	buffer.WriteString(filter.Flush())

	if len(policies) > 0 {
		var summary strings.Builder
		summary.WriteString("\n\nLuggage Policies:")
		for _, entry := range policies {
			summary.WriteString("\n- ")
			summary.WriteString(entry)
		}
		if err := emit(Event{Type: EventAnswer, Content: summary.String()}); err != nil {
			return err
		}
	}
	if residual := buffer.String(); strings.TrimSpace(residual) != "" {
		return emit(Event{Type: EventAnswer, Content: residual})
	}
	return nil
}

func asClientGone(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &clientGone{err: ctxErr}
	}
	return err
}

func endsAtBoundary(text string) bool {
	last, size := utf8.DecodeLastRuneInString(text)
	if size == 0 {
		return false
	}
	switch last {
	case '.', ',', '!', '?':
		return true
	}
	return unicode.IsSpace(last)
}

func chunkRunes(text string, size int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func toValues(rows []rowlit.Row) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

// ErrorMessage is the user-facing text of a pipeline failure.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFlightRelated):
		return notFlightMessage
	case errors.Is(err, ErrNoFlights):
		return noFlightsMessage
	}
	return err.Error()
}

func outcomeOf(err error) string {
	var (
		gone     *clientGone
		parseErr *rowlit.ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &gone):
		return "abandoned"
	case errors.Is(err, ErrNotFlightRelated):
		return "rejected"
	case errors.Is(err, nl2sql.ErrGenerationExhausted):
		return "exhausted"
	case errors.Is(err, flights.ErrExecution):
		return "execution_error"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.Is(err, ErrNoFlights):
		return "no_flights"
	default:
		return "error"
	}
}
