package answer

import (
	"context"
	"strings"
)

// Reply is a fully collected answer.
type Reply struct {
	SQL           string `json:"sql_query"`
	FinalResponse string `json:"final_response"`
}

// Answer runs Stream to completion and concatenates the sql and answer
// events. On failure the partial reply is returned with the error.
func (c *Composer) Answer(ctx context.Context, question string) (Reply, error) {
	var sql, text strings.Builder
	err := c.Stream(ctx, question, func(event Event) error {
		switch event.Type {
		case EventSQL:
			sql.WriteString(event.Content)
		case EventAnswer:
			text.WriteString(event.Content)
		}
		return nil
	})
	return Reply{SQL: sql.String(), FinalResponse: strings.TrimSpace(text.String())}, err
}
