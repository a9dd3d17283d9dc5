package ui

import (
	"fmt"
	"strings"
	"unicode"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
)

func (m model) statusBarView(b *strings.Builder) {
	const percentToStringMagnitude float64 = 100.0

	showStatusMessage := m.statusMessage != ""

	// Logo
	logo := logoView()

	// Spoken percent
	position := fmt.Sprintf(" %3.f%% ", m.spokenPercent()*percentToStringMagnitude)
	if showStatusMessage {
		position = statusBarMessagePositionStyle(position)
	} else {
		position = statusBarPositionStyle(position)
	}

	// Highlight mode, only while speaking
	var mode string
	if m.highlight.Active && !showStatusMessage {
		mode = statusBarModeStyle(" " + m.highlight.Mode.Label() + " ")
	}

	// "Help" note
	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	// Note
	var note string
	switch {
	case showStatusMessage:
		note = m.statusMessage
	case m.state == stateFailed && m.err != nil:
		note = "Error: " + m.err.Error()
	default:
		note = m.noteView()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(mode)-
			ansi.PrintableRuneWidth(position)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	switch {
	case showStatusMessage:
		note = statusBarMessageStyle(note)
	case m.state == stateFailed:
		note = statusBarErrorStyle(note)
	default:
		note = statusBarNoteStyle(note)
	}

	// Empty space
	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(mode)-
			ansi.PrintableRuneWidth(position)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		mode,
		position,
		helpNote,
	)
}

// noteView describes the source and what the reader is doing with it.
func (m model) noteView() string {
	var parts []string
	if m.src.Location != "" {
		parts = append(parts, shortPath(m.src.Location, m.cfg.HomeDir))
	}

	state := m.state.String()
	switch m.state { //nolint:exhaustive
	case stateWaiting:
		state = m.spinner.View() + " " + state + ellipsis
	case statePlaying, statePaused:
		if m.utterance != nil {
			state += " (" + m.utterance.EngineName + ")"
		}
	case stateIdle:
		state += ", press space to speak"
	}
	parts = append(parts, state)
	if m.state != stateIdle && m.state != stateWaiting {
		if n, total := wordPosition(m.highlight.Span); total > 0 {
			parts = append(parts, fmt.Sprintf("word %d/%d", n, total))
		}
	}
	parts = append(parts, speech.FormatSpeed(m.opts.Speed))
	return strings.Join(parts, " · ")
}

// wordPosition returns the number of the word the span starts in and the
// number of words in its text.
func wordPosition(s karaoke.Span) (int, int) {
	s = s.Clamp()
	runes := []rune(s.Text)
	total := len(strings.Fields(s.Text))
	n := len(strings.Fields(string(runes[:s.Index])))
	if s.Index < len(runes) && !unicode.IsSpace(runes[s.Index]) &&
		(s.Index == 0 || unicode.IsSpace(runes[s.Index-1])) {
		n++
	}
	return max(n, min(1, total)), total
}

// spokenPercent is how far into the text the highlight has moved.
func (m model) spokenPercent() float64 {
	s := m.highlight.Span.Clamp()
	n := s.RuneLen()
	if n == 0 {
		return 0
	}
	if m.state == stateFinished {
		return 1
	}
	return float64(s.Index+s.Length) / float64(n)
}

func (m model) helpView() (s string) {
	col1 := []string{
		"space    speak/pause/resume",
		"enter/r  speak from the start",
		"s        stop",
		"+/-      faster/slower",
		"y        copy text",
		"q        quit",
	}

	s += "\n"
	s += "k/↑      up                  " + col1[0] + "\n"
	s += "j/↓      down                " + col1[1] + "\n"
	s += "b/pgup   page up             " + col1[2] + "\n"
	s += "f/pgdn   page down           " + col1[3] + "\n"
	s += "g/home   go to top           " + col1[4] + "\n"
	s += "G/end    go to bottom        " + col1[5]

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}
