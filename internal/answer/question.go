package answer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxQuestionRunes = 2000

var (
	ErrQuestionRequired = errors.New("question is required")
	ErrQuestionTooLong  = fmt.Errorf("question must be at most %d characters", MaxQuestionRunes)
)

// NormalizeQuestion trims the question and enforces the length limit shared
// by every transport.
func NormalizeQuestion(raw string) (string, error) {
	question := strings.TrimSpace(raw)
	if question == "" {
		return "", ErrQuestionRequired
	}
	if utf8.RuneCountInString(question) > MaxQuestionRunes {
		return "", ErrQuestionTooLong
	}
	return question, nil
}
