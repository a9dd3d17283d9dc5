package karaoke

import (
	"strings"
	"unicode"
)

// Normalize prepares text for a native speech engine. Emoji and zero-width
// characters shift the engine's character offsets away from what is shown,
// so they are removed, whitespace runs collapse to a single space and the
// result is trimmed.
//
// The normalized text, not the input, is the base for every charIndex the
// engine reports afterwards. If anything goes wrong the input is returned
// unchanged.
func Normalize(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = text
		}
	}()

	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range text {
		if dropRune(r) {
			continue
		}
		if unicode.IsSpace(r) || r == '\u00a0' {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	return b.String()
}

// dropRune reports whether r is an emoji, regional indicator, zero-width
// character or byte order mark.
func dropRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x200B && r <= 0x200F:
		return true
	case r == 0xFEFF:
		return true
	}
	return false
}
