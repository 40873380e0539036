// Package nl2sql turns a flight question into a verified SQL query using a
// bounded generate-then-verify loop.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/prompts"
	"github.com/flightqa/flightqa/internal/textnorm"
)

// MaxAttempts bounds the generate/verify loop for every question.
const MaxAttempts = 3

var ErrGenerationExhausted = errors.New("sql generation exhausted")

// SchemaProvider describes the database to the SQL model.
type SchemaProvider interface {
	Schema(ctx context.Context) (string, error)
}

// Completer is the blocking half of llm.Model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Attempt records one generate/verify iteration.
type Attempt struct {
	Number int    `json:"number"`
	Raw    string `json:"raw"`
	SQL    string `json:"sql"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type Result struct {
	SQL      string    `json:"sql"`
	Attempts []Attempt `json:"attempts"`
}

// ExhaustedError is returned when no attempt produced a query the verifier
// accepted.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to generate valid SQL query after %d attempts", len(e.Attempts))
}

func (e *ExhaustedError) Unwrap() error {
	return ErrGenerationExhausted
}

type Generator struct {
	schema  SchemaProvider
	model   Completer
	prompts *prompts.Set
	topK    int
	logger  *slog.Logger
}

func NewGenerator(schema SchemaProvider, model Completer, set *prompts.Set, logger *slog.Logger) (*Generator, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema provider is required")
	}
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if set == nil {
		return nil, fmt.Errorf("prompt set is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{schema: schema, model: model, prompts: set, topK: prompts.DefaultTopK, logger: logger}, nil
}

// Generate runs up to MaxAttempts independent attempts. Each attempt starts
// from the question alone; earlier verdicts are not fed back to the model.
// Model and schema failures end the loop immediately.
func (g *Generator) Generate(ctx context.Context, question string) (Result, error) {
	start := time.Now()
	attempts := make([]Attempt, 0, MaxAttempts)
	for number := 1; number <= MaxAttempts; number++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, err
		}
		attempt, err := g.attempt(ctx, number, question)
		if err != nil {
			return Result{Attempts: attempts}, err
		}
		attempts = append(attempts, attempt)
		if attempt.Valid {
			g.logger.InfoContext(ctx, "sql_generated",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.Int("attempt", number),
			)
			observability.ObserveSQLGeneration(number, true, time.Since(start))
			return Result{SQL: attempt.SQL, Attempts: attempts}, nil
		}
		g.logger.WarnContext(ctx, "sql_rejected",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int("attempt", number),
			slog.String("reason", attempt.Reason),
		)
	}
	observability.ObserveSQLGeneration(len(attempts), false, time.Since(start))
	return Result{Attempts: attempts}, &ExhaustedError{Attempts: attempts}
}

func (g *Generator) attempt(ctx context.Context, number int, question string) (Attempt, error) {
	schema, err := g.schema.Schema(ctx)
	if err != nil {
		return Attempt{}, fmt.Errorf("load schema: %w", err)
	}
	prompt, err := g.prompts.SQL(question, g.topK, schema)
	if err != nil {
		return Attempt{}, err
	}
	g.logger.DebugContext(ctx, "sql_prompt",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("attempt", number),
		slog.String("prompt", prompt),
	)

	raw, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return Attempt{}, fmt.Errorf("generate sql on attempt %d: %w", number, err)
	}
	attempt := Attempt{
		Number: number,
		Raw:    raw,
		SQL:    textnorm.NormalizeSQL(textnorm.StripThink(raw)),
	}
	if attempt.SQL == "" {
		attempt.Reason = "model returned no SQL"
		return attempt, nil
	}

	verdict, err := g.Verify(ctx, question, attempt.SQL)
	if err != nil {
		return Attempt{}, fmt.Errorf("verify sql on attempt %d: %w", number, err)
	}
	attempt.Valid = verdict.Valid
	attempt.Reason = verdict.Reason
	return attempt, nil
}

// Verify asks the model whether sql answers the flight part of question.
func (g *Generator) Verify(ctx context.Context, question, sql string) (Verdict, error) {
	prompt, err := g.prompts.Verify(question, sql)
	if err != nil {
		return Verdict{}, err
	}
	raw, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(raw), nil
}

// DefaultReason is used when an invalid verdict carries no explanation.
const DefaultReason = "Query does not correctly answer the question"

type Verdict struct {
	Valid  bool
	Reason string
}

// ParseVerdict accepts a response only when its first word is exactly VALID,
// so VALIDATED and INVALID are both rejections.
func ParseVerdict(raw string) Verdict {
	text := strings.TrimSpace(textnorm.StripThink(raw))
	if firstWord(strings.ToUpper(text)) == "VALID" {
		return Verdict{Valid: true}
	}
	if _, after, ok := strings.Cut(text, ":"); ok {
		if reason := strings.TrimSpace(after); reason != "" {
			return Verdict{Reason: reason}
		}
	}
	return Verdict{Reason: DefaultReason}
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"'*.:,;!`)
}
