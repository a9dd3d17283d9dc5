package karaoke

// Segments are the three display pieces of a span. Before+Current+After is
// always the span's full text.
type Segments struct {
	Before  string
	Current string
	After   string
}

// Slice cuts the span's text around the highlight. Out-of-range spans are
// clamped first, so Slice never panics.
func Slice(s Span) Segments {
	s = s.Clamp()
	runes := []rune(s.Text)
	end := s.Index + s.Length

	return Segments{
		Before:  string(runes[:s.Index]),
		Current: string(runes[s.Index:end]),
		After:   string(runes[end:]),
	}
}

// Mark returns the text to draw inside the highlight marker. An empty
// highlight on an active utterance renders as a single space so the marker
// stays visible.
func (g Segments) Mark(active bool) string {
	if g.Current == "" && active {
		return " "
	}
	return g.Current
}

// String joins the segments back together.
func (g Segments) String() string {
	return g.Before + g.Current + g.After
}
