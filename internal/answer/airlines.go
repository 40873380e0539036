package answer

import "github.com/flightqa/flightqa/internal/rowlit"

// AllowList reports whether an airline name is recognized.
type AllowList interface {
	Allowed(name string) bool
}

// Airlines returns the allow-listed airline names found in rows, in order of
// first appearance. Every string field is considered so projections that
// reorder or drop columns still resolve.
func Airlines(rows []rowlit.Row, allow AllowList) []string {
	if allow == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		for _, field := range row {
			name, ok := field.(string)
			if !ok || !allow.Allowed(name) {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
