package classify

import (
	"strings"
	"testing"
)

func TestIsFlightRelated(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{question: "flights from Mumbai to Hanoi", want: true},
		{question: "xyz abc qqq", want: false},
		{question: "flghts from Delhi", want: true},
		{question: "cheapest fare please", want: true},
		{question: "anything under $300", want: true},
		{question: "under ₹20000", want: true},
		{question: "", want: false},
		{question: "tell me a joke", want: false},
	}
	for _, tt := range tests {
		if got := IsFlightRelated(tt.question); got != tt.want {
			t.Fatalf("IsFlightRelated(%q) = %v, want %v", tt.question, got, tt.want)
		}
	}
}

func TestIsFlightRelatedFuzzyWithoutPreposition(t *testing.T) {
	if !IsFlightRelated("flghts") {
		t.Fatal("expected typo of flight to match")
	}
}

func TestIsLuggageRelated(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{question: "can I bring a 25kg bag", want: true},
		{question: "what's the fare", want: false},
		{question: "baggage allowance on IndiGo", want: true},
		{question: "suitcse limits", want: true},
		{question: "cheapest flight from Mumbai to Hanoi", want: false},
	}
	for _, tt := range tests {
		if got := IsLuggageRelated(tt.question); got != tt.want {
			t.Fatalf("IsLuggageRelated(%q) = %v, want %v", tt.question, got, tt.want)
		}
	}
}

func TestBestMatch(t *testing.T) {
	best, score := BestMatch("flghts", flightVocabulary)
	if best != "flight" {
		t.Fatalf("best = %q", best)
	}
	if score < Cutoff {
		t.Fatalf("score = %v", score)
	}

	if best, score := BestMatch("anything", nil); best != "" || score != 0 {
		t.Fatalf("BestMatch(nil vocabulary) = (%q, %v)", best, score)
	}
}

func TestRatioMatchesDifflib(t *testing.T) {
	// difflib.SequenceMatcher(None, "flight", "flghts").ratio() == 10/12
	got := Ratio("flight", strings.Split("flghts", ""))
	if got < 0.833 || got > 0.834 {
		t.Fatalf("Ratio() = %v", got)
	}
}

func TestLuggageVocabularyIsCopy(t *testing.T) {
	words := LuggageVocabulary()
	words[0] = "mutated"
	if luggageVocabulary[0] != "luggage" {
		t.Fatal("LuggageVocabulary leaked internal slice")
	}
}
