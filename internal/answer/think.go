package answer

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkFilter drops <think>...</think> spans from a fragment stream. Markers
// may arrive split across fragments, so a trailing partial marker is held
// back until the next fragment decides it.
type thinkFilter struct {
	inThink bool
	pending string
}

// Write consumes one fragment and returns its visible text.
func (f *thinkFilter) Write(fragment string) string {
	text := f.pending + fragment
	f.pending = ""

	var visible strings.Builder
	for text != "" {
		marker := thinkOpen
		if f.inThink {
			marker = thinkClose
		}
		if idx := strings.Index(text, marker); idx >= 0 {
			if !f.inThink {
				visible.WriteString(text[:idx])
			}
			text = text[idx+len(marker):]
			f.inThink = !f.inThink
			continue
		}
		keep := partialSuffix(text, marker)
		if !f.inThink {
			visible.WriteString(text[:len(text)-keep])
		}
		f.pending = text[len(text)-keep:]
		break
	}
	return visible.String()
}

// Flush releases a held partial marker once the stream ends. Text inside an
// unterminated span stays suppressed.
func (f *thinkFilter) Flush() string {
	pending := f.pending
	f.pending = ""
	if f.inThink {
		return ""
	}
	return pending
}

// partialSuffix is the length of the longest proper prefix of marker that
// text ends with.
func partialSuffix(text, marker string) int {
	for n := len(marker) - 1; n > 0; n-- {
		if strings.HasSuffix(text, marker[:n]) {
			return n
		}
	}
	return 0
}
