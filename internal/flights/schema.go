package flights

import (
	"context"
	"fmt"
	"strings"
)

type column struct {
	Table    string `db:"table_name"`
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
}

// Schema describes every user table as its CREATE TABLE statement followed
// by a few sample rows, tab separated inside a comment block.
func (s *Store) Schema(ctx context.Context) (string, error) {
	tables, err := s.tableDefinitions(ctx)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		description := table.ddl
		if s.sampleRows > 0 {
			sample, err := s.sampleBlock(ctx, table.name)
			if err != nil {
				return "", err
			}
			description += "\n\n" + sample
		}
		parts = append(parts, description)
	}
	return strings.Join(parts, "\n\n"), nil
}

type tableDefinition struct {
	name string
	ddl  string
}

func (s *Store) tableDefinitions(ctx context.Context) ([]tableDefinition, error) {
	if s.driver == DriverSQLite {
		var rows []struct {
			Name string `db:"name"`
			SQL  string `db:"sql"`
		}
		err := s.db.SelectContext(ctx, &rows,
			`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
		if err != nil {
			return nil, fmt.Errorf("%w: describe tables: %w", ErrExecution, err)
		}
		out := make([]tableDefinition, 0, len(rows))
		for _, row := range rows {
			out = append(out, tableDefinition{name: row.Name, ddl: strings.TrimSpace(row.SQL)})
		}
		return out, nil
	}

	schemaName := "public"
	if s.driver == DriverDuckDB {
		schemaName = "main"
	}
	var columns []column
	err := s.db.SelectContext(ctx, &columns, s.db.Rebind(
		`SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = ? ORDER BY table_name, ordinal_position`),
		schemaName)
	if err != nil {
		return nil, fmt.Errorf("%w: describe tables: %w", ErrExecution, err)
	}

	var out []tableDefinition
	var current string
	var lines []string
	flush := func() {
		if current == "" {
			return
		}
		out = append(out, tableDefinition{
			name: current,
			ddl:  "CREATE TABLE " + current + " (\n\t" + strings.Join(lines, ",\n\t") + "\n)",
		})
	}
	for _, col := range columns {
		if col.Table != current {
			flush()
			current = col.Table
			lines = lines[:0]
		}
		lines = append(lines, col.Name+" "+strings.ToUpper(col.DataType))
	}
	flush()
	return out, nil
}

func (s *Store) sampleBlock(ctx context.Context, table string) (string, error) {
	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), s.sampleRows))
	if err != nil {
		return "", fmt.Errorf("%w: sample %s: %w", ErrExecution, table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("%w: sample columns: %w", ErrExecution, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "/*\n%d rows from %s table:\n%s\n", s.sampleRows, table, strings.Join(columns, "\t"))
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return "", fmt.Errorf("%w: sample row: %w", ErrExecution, err)
		}
		cells := make([]string, len(values))
		for i, value := range normalizeValues(values) {
			cells[i] = sampleCell(value)
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: sample rows: %w", ErrExecution, err)
	}
	b.WriteString("*/")
	return b.String(), nil
}

func sampleCell(value any) string {
	if value == nil {
		return "None"
	}
	text := []rune(fmt.Sprint(value))
	if len(text) > 100 {
		return string(text[:100]) + "..."
	}
	return string(text)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
