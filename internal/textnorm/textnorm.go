// Package textnorm cleans raw language-model output into executable SQL.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	specialTokenPattern = regexp.MustCompile(`<\|.*?\|>`)
	sqlFencePattern     = regexp.MustCompile("```sql\\s*")
	fencePattern        = regexp.MustCompile("```.*")
	lineCommentPattern  = regexp.MustCompile(`(?m)--.*$`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	spaceBeforeComma    = regexp.MustCompile(`\s+,`)
	doubleQuotedPattern = regexp.MustCompile(`"([^"]*)"`)
	repeatedSingleQuote = regexp.MustCompile(`''+`)
	thinkSpanPattern    = regexp.MustCompile(`(?s)<think>.*?</think>`)

	keywordPattern = regexp.MustCompile(`(?i)\b(INSERT INTO|ORDER BY|GROUP BY|LEFT JOIN|RIGHT JOIN|INNER JOIN|SELECT|FROM|WHERE|AND|OR|LIMIT|JOIN|HAVING|UPDATE|DELETE)\b`)
)

// Normalize is the total form of NormalizeSQL: anything that is not a string
// normalizes to the empty string.
func Normalize(value any) string {
	raw, ok := value.(string)
	if !ok {
		return ""
	}
	return NormalizeSQL(raw)
}

// NormalizeSQL strips model scaffolding, markdown fences and comments from
// raw, then canonicalizes whitespace, quoting and keyword casing. The result
// is stable under repeated application.
//
// The loop has no pass limit. After the first pass a changing pass either
// removes characters or rewrites double quotes and keyword case, and those
// rewrites only move in one direction, so it always reaches a fixpoint.
func NormalizeSQL(raw string) string {
	current := raw
	for {
		next := normalizeOnce(current)
		if next == current {
			return next
		}
		current = next
	}
}

// Removing one marker can splice its neighbours into a new one, which is why
// NormalizeSQL repeats this until nothing changes.
func normalizeOnce(sql string) string {
	sql = removeSpecialTokens(sql)
	sql = removeCodeBlocks(sql)
	sql = removeComments(sql)
	sql = standardizeWhitespace(sql)
	sql = fixQuotes(sql)
	return upperKeywords(sql)
}

func removeSpecialTokens(sql string) string {
	return specialTokenPattern.ReplaceAllString(sql, "")
}

func removeCodeBlocks(sql string) string {
	sql = sqlFencePattern.ReplaceAllString(sql, "")
	sql = fencePattern.ReplaceAllString(sql, "")
	return strings.ReplaceAll(sql, "`", "")
}

func removeComments(sql string) string {
	sql = lineCommentPattern.ReplaceAllString(sql, "")
	return blockCommentPattern.ReplaceAllString(sql, "")
}

func standardizeWhitespace(sql string) string {
	sql = whitespacePattern.ReplaceAllString(sql, " ")
	sql = strings.ReplaceAll(sql, ",", ", ")
	sql = whitespacePattern.ReplaceAllString(sql, " ")
	sql = spaceBeforeComma.ReplaceAllString(sql, ",")
	return strings.TrimSpace(sql)
}

// fixQuotes is lossy: a literal that legitimately contains '' loses one of
// its quotes.
func fixQuotes(sql string) string {
	sql = doubleQuotedPattern.ReplaceAllString(sql, "'$1'")
	return repeatedSingleQuote.ReplaceAllString(sql, "'")
}

func upperKeywords(sql string) string {
	return keywordPattern.ReplaceAllStringFunc(sql, strings.ToUpper)
}

// StripThink removes <think>...</think> scratchpad spans and trims the rest.
func StripThink(text string) string {
	return strings.TrimSpace(thinkSpanPattern.ReplaceAllString(text, ""))
}
