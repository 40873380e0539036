package flights

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/flightqa/flightqa/internal/rowlit"
)

// ErrExecution marks database failures while describing or querying the
// flight data. It is terminal for a request and never retried.
var ErrExecution = errors.New("SQL execution error")

const defaultSampleRows = 3

type Store struct {
	db         *sqlx.DB
	driver     string
	sampleRows int
}

func NewStore(db *sqlx.DB, sampleRows int) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if sampleRows < 0 {
		sampleRows = 0
	} else if sampleRows == 0 {
		sampleRows = defaultSampleRows
	}
	return &Store{db: db, driver: db.DriverName(), sampleRows: sampleRows}, nil
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Run executes a generated read-only query and returns its rows as a
// list-of-tuples literal. An empty result is "[]".
func (s *Store) Run(ctx context.Context, query string) (string, error) {
	query = stripTrailingSemicolons(query)
	if query == "" {
		return "", fmt.Errorf("%w: empty query", ErrExecution)
	}
	if !isReadOnly(query) {
		return "", fmt.Errorf("%w: only SELECT queries are allowed", ErrExecution)
	}

	rows, err := s.query(ctx, query)
	if err != nil {
		return "", err
	}
	return rowlit.Format(rows), nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([][]any, 0)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %w", ErrExecution, err)
		}
		out = append(out, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %w", ErrExecution, err)
	}
	return out, nil
}

func normalizeValues(values []any) []any {
	for i, value := range values {
		if raw, ok := value.([]byte); ok {
			values[i] = string(raw)
		}
	}
	return values
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func isReadOnly(query string) bool {
	if hasStatementSeparator(query) {
		return false
	}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return true
	default:
		return false
	}
}

// hasStatementSeparator reports a ';' outside string literals, quoted
// identifiers and comments. Trailing separators are stripped before this.
func hasStatementSeparator(query string) bool {
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == ';':
			return true
		case c == '\'' || c == '"':
			// A doubled quote is an escape and reopens the same literal.
			end := strings.IndexByte(query[i+1:], c)
			if end < 0 {
				return false
			}
			i += end + 1
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return false
			}
			i += end
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		}
	}
	return false
}
