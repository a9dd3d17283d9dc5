package karaoke

import (
	"math"
	"strings"
	"unicode"
)

// wordBreaks are the punctuation characters that end a word reported by a
// boundary event, in addition to whitespace.
const wordBreaks = `.,!?;:()[]{}"'«»`

func isWordBreak(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(wordBreaks, r)
}

// BoundarySpan converts a word-boundary event at charIndex into a span. The
// span runs from charIndex to the next whitespace or punctuation rune and is
// at least one rune long. An index outside the text is clamped to 0.
func BoundarySpan(text string, charIndex int) Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return Span{Text: text}
	}
	if charIndex < 0 || charIndex >= n {
		return Span{Text: text, Index: 0, Length: 1}
	}

	end := charIndex
	for end < n && !isWordBreak(runes[end]) {
		end++
	}

	return Span{Text: text, Index: charIndex, Length: max(1, end-charIndex)}
}

// EstimateSpan approximates the voiced word from elapsed playback time by
// assuming a uniform speech rate across the text. It returns false and no
// span when the duration is unusable or the text is empty.
//
// When the estimated position falls on whitespace, the whitespace rune itself
// is the span. At the very end the last word is chosen, skipping any trailing
// whitespace.
func EstimateSpan(text string, st PlaybackState) (Span, bool) {
	if !(st.Duration > 0) || math.IsInf(st.Duration, 0) || math.IsNaN(st.CurrentTime) {
		return Span{}, false
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return Span{}, false
	}

	ratio := min(1, max(0, st.CurrentTime/st.Duration))
	center := int(math.Floor(float64(n) * ratio))
	if center == n {
		center = n - 1
		for center > 0 && unicode.IsSpace(runes[center]) {
			center--
		}
	}

	if unicode.IsSpace(runes[center]) {
		return Span{Text: text, Index: center, Length: 1}, true
	}

	start := center
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	end := center
	for end < n && !unicode.IsSpace(runes[end]) {
		end++
	}

	span := Span{Text: text, Index: start, Length: max(1, end-start)}
	return span.Clamp(), true
}
