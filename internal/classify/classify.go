// Package classify decides whether a question is about flights and whether
// it also asks about baggage. Matching is typo tolerant: a token counts when
// its closest vocabulary word has a difflib similarity ratio of at least
// Cutoff.
package classify

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Cutoff is the minimum similarity ratio for a fuzzy match.
const Cutoff = 0.75

var flightVocabulary = []string{
	"flight", "air", "airline", "airport", "airways",
	"travel", "trip", "journey",
	"destination", "dest",
	"origin", "route", "path", "connection",
	"price", "fare", "cost", "expensive", "cheap",
	"direct", "nonstop", "connecting",
	"departure", "arrive", "arriving", "departing",
	"domestic", "international",
}

var luggageVocabulary = []string{
	"luggage", "baggage", "bag", "suitcase", "carry-on",
	"carry on", "check-in", "checked bag", "hand baggage",
	"weight", "kg", "kilos", "pounds", "lbs",
	"dimensions", "size", "allowance", "restriction",
	"prohibited", "forbidden", "allowed", "limit",
	"overweight", "excess", "cabin", "hold", "storage",
	"pack", "bring", "carry", "transport", "stow",
}

var locationIndicators = map[string]struct{}{
	"from":    {},
	"to":      {},
	"between": {},
	"via":     {},
}

var currencySymbols = []string{"₹", "$", "€"}

// IsFlightRelated reports whether question mentions a route preposition, a
// flight-domain word (allowing typos) or a currency symbol.
func IsFlightRelated(question string) bool {
	for _, token := range tokenize(question) {
		if _, ok := locationIndicators[token]; ok {
			return true
		}
		if matches(token, flightVocabulary) {
			return true
		}
	}
	for _, symbol := range currencySymbols {
		if strings.Contains(question, symbol) {
			return true
		}
	}
	return false
}

// IsLuggageRelated reports whether any token of question fuzzy-matches a
// baggage-domain word.
func IsLuggageRelated(question string) bool {
	for _, token := range tokenize(question) {
		if matches(token, luggageVocabulary) {
			return true
		}
	}
	return false
}

// LuggageVocabulary returns a copy of the baggage word list, for prompts
// that need to tell a model which aspects are handled elsewhere.
func LuggageVocabulary() []string {
	out := make([]string, len(luggageVocabulary))
	copy(out, luggageVocabulary)
	return out
}

func tokenize(question string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(question)))
}

func matches(word string, vocabulary []string) bool {
	_, score := BestMatch(word, vocabulary)
	return score >= Cutoff
}

// BestMatch returns the vocabulary entry most similar to word together with
// its similarity ratio in [0, 1]. An empty vocabulary yields ("", 0).
func BestMatch(word string, vocabulary []string) (string, float64) {
	wordChars := strings.Split(word, "")
	best := ""
	bestScore := 0.0
	for _, candidate := range vocabulary {
		score := Ratio(candidate, wordChars)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, bestScore
}

// Ratio computes difflib's SequenceMatcher ratio between candidate and the
// already split word.
func Ratio(candidate string, wordChars []string) float64 {
	matcher := difflib.NewMatcher(strings.Split(candidate, ""), wordChars)
	return matcher.Ratio()
}
