// Package karaoke maps speech progress onto the spoken text. It turns
// word-boundary events and playback ticks into the span of text that is
// currently being voiced, and decides how that span is laid out and scrolled.
//
// All offsets in this package are rune offsets into the text.
package karaoke

// Mode tells how a highlight was derived.
type Mode int

const (
	// ModeExact comes from word-boundary events reported by a speech engine.
	ModeExact Mode = iota

	// ModeApproximate comes from interpolating elapsed playback time.
	ModeApproximate
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeApproximate:
		return "approximate"
	default:
		return "unknown"
	}
}

// Label is the short affordance shown next to an active highlight.
func (m Mode) Label() string {
	if m == ModeApproximate {
		return "≈ approximate"
	}
	return "● exact"
}

// Span is the currently voiced slice of Text.
type Span struct {
	Text   string
	Index  int
	Length int
}

// RuneLen returns the length of the span's text in runes.
func (s Span) RuneLen() int {
	return len([]rune(s.Text))
}

// Clamp returns a copy of s with Index and Length forced into the bounds of
// the text.
func (s Span) Clamp() Span {
	n := s.RuneLen()
	if s.Index < 0 {
		s.Index = 0
	}
	if s.Index > n {
		s.Index = n
	}
	if s.Length < 0 {
		s.Length = 0
	}
	if s.Index+s.Length > n {
		s.Length = n - s.Index
	}
	return s
}

// Word returns the highlighted text.
func (s Span) Word() string {
	return Slice(s).Current
}

// PlaybackState is a time-update sample from decoded audio, in seconds.
type PlaybackState struct {
	CurrentTime float64
	Duration    float64
}

// Highlight is what a renderer reads on every tick.
type Highlight struct {
	Span   Span
	Mode   Mode
	Active bool
}
