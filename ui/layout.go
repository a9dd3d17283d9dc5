package ui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

// cell is one displayed rune and its offset in the laid out text.
type cell struct {
	r   rune
	idx int
}

// layout is text wrapped to a width, with every displayed rune mapped back
// to the rune it came from so a span can be drawn across line breaks.
type layout struct {
	text  string
	width int
	lines [][]cell

	// lineOf holds the line of every rune offset, plus one entry for the
	// end of the text. Runes dropped by wrapping sit on the line where
	// they were dropped.
	lineOf []int
}

func newLayout(text string, width int) layout {
	orig := []rune(text)
	l := layout{
		text:   text,
		width:  width,
		lines:  [][]cell{nil},
		lineOf: make([]int, len(orig)+1),
	}
	if width <= 0 {
		width = len(orig) + 1
	}
	wrapped := []rune(wrap.String(wordwrap.String(text, width), width))

	line := 0
	newline := func() {
		line++
		l.lines = append(l.lines, nil)
	}

	i, j := 0, 0
	for i < len(orig) && j < len(wrapped) {
		switch {
		case wrapped[j] == orig[i]:
			l.lineOf[i] = line
			if orig[i] == '\n' {
				newline()
			} else {
				l.lines[line] = append(l.lines[line], cell{r: orig[i], idx: i})
			}
			i++
			j++

		case wrapped[j] == '\n':
			// A break inserted by wrapping, possibly in place of a space.
			if unicode.IsSpace(orig[i]) {
				l.lineOf[i] = line
				i++
			}
			newline()
			j++

		case unicode.IsSpace(orig[i]):
			l.lineOf[i] = line
			i++

		default:
			j++
		}
	}
	for ; i < len(orig); i++ {
		l.lineOf[i] = line
		if orig[i] == '\n' {
			newline()
			continue
		}
		l.lines[line] = append(l.lines[line], cell{r: orig[i], idx: i})
	}
	l.lineOf[len(orig)] = line

	return l
}

// height is the number of laid out lines.
func (l layout) height() int {
	return len(l.lines)
}

// mark returns the rows covered by the span, the bottom row exclusive.
func (l layout) mark(s karaoke.Span) karaoke.Mark {
	s = s.Clamp()
	top := l.lineOf[s.Index]
	last := s.Index
	if s.Length > 0 {
		last = s.Index + s.Length - 1
	}
	return karaoke.Mark{
		Top:    float64(top),
		Bottom: float64(l.lineOf[last] + 1),
	}
}

// render draws the text with the span's runes in style. An active empty
// span is drawn as a styled space at its offset.
func (l layout) render(h karaoke.Highlight, style lipgloss.Style) string {
	s := h.Span.Clamp()
	if s.Text != l.text {
		// A span over other text has nothing to mark here.
		s, h.Active = karaoke.Span{Text: l.text}, false
	}
	start, end := s.Index, s.Index+s.Length
	caret := h.Active && s.Length == 0

	var (
		b      strings.Builder
		run    strings.Builder
		placed bool
		inside bool
	)
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if inside {
			b.WriteString(style.Render(run.String()))
		} else {
			b.WriteString(run.String())
		}
		run.Reset()
	}

	for n, line := range l.lines {
		if n > 0 {
			flush()
			b.WriteByte('\n')
		}
		for _, c := range line {
			if caret && !placed && c.idx >= start {
				flush()
				b.WriteString(style.Render(" "))
				placed = true
			}
			in := c.idx >= start && c.idx < end
			if in != inside {
				flush()
				inside = in
			}
			run.WriteRune(c.r)
		}
	}
	flush()
	if caret && !placed {
		b.WriteString(style.Render(" "))
	}
	return b.String()
}
