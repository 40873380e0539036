// Package rowlit encodes and decodes query results in their textual form: a
// literal list of row tuples such as
//
//	[(1, 'IndiGo', '06:10', 15432), (2, 'VietJet Air', '09:45', 12110)]
//
// Executors hand results across this boundary as text, and the answer
// pipeline decodes them back into rows before using them.
package rowlit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Row is one result tuple. Values are string, int64, float64, bool or nil,
// plus uint64 for integers above the int64 range.
type Row []any

type ParseErrorKind string

const (
	// KindSyntax means the text is not a well-formed literal.
	KindSyntax ParseErrorKind = "syntax"
	// KindShape means the literal is well formed but is not a list of tuples.
	KindShape ParseErrorKind = "shape"
)

type ParseError struct {
	Kind   ParseErrorKind
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Kind == KindShape {
		return "invalid format: expected a list of tuples: " + e.Msg
	}
	return fmt.Sprintf("error parsing rows at offset %d: %s", e.Offset, e.Msg)
}

// tuple marks a parsed parenthesized sequence so Parse can tell it apart
// from a list.
type tuple []any

// Parse decodes text into rows. It fails with *ParseError when text is not
// a literal (KindSyntax) or is a literal of any other shape (KindShape).
func Parse(text string) ([]Row, error) {
	p := &parser{input: []rune(text)}
	p.skipSpace()
	value, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.done() {
		return nil, p.syntaxErr("unexpected trailing input %q", string(p.peek()))
	}

	list, ok := value.([]any)
	if !ok {
		return nil, &ParseError{Kind: KindShape, Msg: fmt.Sprintf("top-level value is %s", describe(value))}
	}
	rows := make([]Row, 0, len(list))
	for i, item := range list {
		tup, ok := item.(tuple)
		if !ok {
			return nil, &ParseError{Kind: KindShape, Msg: fmt.Sprintf("item %d is %s", i, describe(item))}
		}
		rows = append(rows, Row(tup))
	}
	return rows, nil
}

type parser struct {
	input []rune
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.input) }

func (p *parser) peek() rune {
	if p.done() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for !p.done() && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *parser) syntaxErr(format string, args ...any) *ParseError {
	return &ParseError{Kind: KindSyntax, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) value() (any, error) {
	if p.done() {
		return nil, p.syntaxErr("unexpected end of input")
	}
	switch r := p.peek(); {
	case r == '[':
		items, _, err := p.sequence('[', ']')
		if err != nil {
			return nil, err
		}
		return items, nil
	case r == '(':
		items, sawComma, err := p.sequence('(', ')')
		if err != nil {
			return nil, err
		}
		if len(items) == 1 && !sawComma {
			// (x) is a parenthesized value, not a tuple.
			return items[0], nil
		}
		return tuple(items), nil
	case r == '\'' || r == '"':
		return p.str()
	case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
		return p.number()
	case unicode.IsLetter(r):
		return p.name()
	default:
		return nil, p.syntaxErr("unexpected character %q", string(r))
	}
}

func (p *parser) sequence(open, closing rune) ([]any, bool, error) {
	p.pos++ // open
	items := make([]any, 0)
	sawComma := false
	for {
		p.skipSpace()
		if p.done() {
			return nil, false, p.syntaxErr("unterminated %q", string(open))
		}
		if p.peek() == closing {
			p.pos++
			return items, sawComma, nil
		}
		item, err := p.value()
		if err != nil {
			return nil, false, err
		}
		items = append(items, item)
		p.skipSpace()
		switch p.peek() {
		case ',':
			sawComma = true
			p.pos++
		case closing:
		default:
			if p.done() {
				return nil, false, p.syntaxErr("unterminated %q", string(open))
			}
			return nil, false, p.syntaxErr("expected ',' or %q", string(closing))
		}
	}
}

func (p *parser) str() (string, error) {
	quote := p.input[p.pos]
	p.pos++
	var b strings.Builder
	for {
		if p.done() {
			return "", p.syntaxErr("unterminated string")
		}
		r := p.input[p.pos]
		p.pos++
		switch r {
		case quote:
			return b.String(), nil
		case '\n':
			return "", p.syntaxErr("newline in string")
		case '\\':
			if p.done() {
				return "", p.syntaxErr("unterminated escape")
			}
			esc := p.input[p.pos]
			p.pos++
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '\\', '\'', '"':
				b.WriteRune(esc)
			case 'x', 'u':
				size := 2
				if esc == 'u' {
					size = 4
				}
				if p.pos+size > len(p.input) {
					return "", p.syntaxErr("short \\%c escape", esc)
				}
				code, err := strconv.ParseUint(string(p.input[p.pos:p.pos+size]), 16, 32)
				if err != nil {
					return "", p.syntaxErr("invalid \\%c escape", esc)
				}
				p.pos += size
				b.WriteRune(rune(code))
			default:
				b.WriteRune('\\')
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
}

func (p *parser) number() (any, error) {
	start := p.pos
	if r := p.peek(); r == '-' || r == '+' {
		p.pos++
	}
	isFloat := false
	for !p.done() {
		r := p.peek()
		switch {
		case unicode.IsDigit(r) || r == '_':
		case r == '.' || r == 'e' || r == 'E':
			isFloat = true
		case (r == '-' || r == '+') && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E'):
		default:
			return p.finishNumber(start, isFloat)
		}
		p.pos++
	}
	return p.finishNumber(start, isFloat)
}

func (p *parser) finishNumber(start int, isFloat bool) (any, error) {
	raw := strings.ReplaceAll(string(p.input[start:p.pos]), "_", "")
	if isFloat {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			p.pos = start
			return nil, p.syntaxErr("invalid number %q", raw)
		}
		return value, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return value, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		// Unsigned columns can exceed int64; wider values degrade to float64.
		if unsigned, uerr := strconv.ParseUint(strings.TrimPrefix(raw, "+"), 10, 64); uerr == nil {
			return unsigned, nil
		}
		if wide, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
			return wide, nil
		}
	}
	p.pos = start
	return nil, p.syntaxErr("invalid number %q", raw)
}

func (p *parser) name() (any, error) {
	start := p.pos
	for !p.done() && (unicode.IsLetter(p.peek()) || unicode.IsDigit(p.peek()) || p.peek() == '_') {
		p.pos++
	}
	switch word := string(p.input[start:p.pos]); word {
	case "None":
		return nil, nil
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		p.pos = start
		return nil, p.syntaxErr("unknown name %q", word)
	}
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "None"
	case []any:
		return "a list"
	case tuple:
		return "a tuple"
	case string:
		return "a string"
	case bool:
		return "a bool"
	case int64, uint64, float64:
		return "a number"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// Format renders rows in the literal form Parse accepts.
func Format(rows [][]any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, value := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatValue(value))
		}
		if len(row) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

// FormatValue renders one scalar. Unknown types fall back to their quoted
// fmt representation.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return quote(v)
	case []byte:
		return quote(string(v))
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case time.Time:
		return quote(v.Format(time.RFC3339))
	default:
		return quote(fmt.Sprint(v))
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "None"
	}
	out := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(out, ".e") {
		out += ".0"
	}
	return out
}

func quote(s string) string {
	delim := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		delim = '"'
	}
	var b strings.Builder
	b.WriteByte(delim)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(delim):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(delim)
	return b.String()
}
