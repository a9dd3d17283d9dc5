package karaoke

import (
	"fmt"
	"math"
	"strings"
)

// Align is where a highlight is placed after an automatic scroll.
type Align string

const (
	AlignTop    Align = "top"
	AlignCenter Align = "center"
	AlignBottom Align = "bottom"
)

// DefaultScrollMargin is the distance, in viewport units, a highlight may
// come to the viewport's edge before a scroll is triggered.
const DefaultScrollMargin = 12

// ParseAlign parses a scroll alignment name. The empty string is center.
func ParseAlign(s string) (Align, error) {
	switch a := Align(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AlignCenter, nil
	case AlignTop, AlignCenter, AlignBottom:
		return a, nil
	default:
		return "", fmt.Errorf("unknown scroll alignment %q (want top, center or bottom)", s)
	}
}

// Ratio is the fraction of the viewport height above the highlight after a
// scroll.
func (a Align) Ratio() float64 {
	switch a {
	case AlignTop:
		return 0.1
	case AlignBottom:
		return 0.85
	default:
		return 0.5
	}
}

// ScrollConfig controls automatic scrolling.
type ScrollConfig struct {
	Align  Align
	Margin float64
}

// DefaultScrollConfig centers the highlight with the default margin.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{Align: AlignCenter, Margin: DefaultScrollMargin}
}

// Viewport is the geometry of the scrollable area.
type Viewport struct {
	ScrollTop    float64
	ClientHeight float64
}

// Mark is the vertical extent of the highlight within the laid out text.
type Mark struct {
	Top    float64
	Bottom float64
}

// NeedsScroll reports whether the mark is outside the acceptable band of
// the viewport.
func (c ScrollConfig) NeedsScroll(m Mark, v Viewport) bool {
	return m.Top < v.ScrollTop+c.Margin || m.Bottom > v.ScrollTop+v.ClientHeight-c.Margin
}

// Target is the scroll position that puts the mark at the configured
// alignment.
func (c ScrollConfig) Target(m Mark, v Viewport) float64 {
	return math.Max(0, math.Floor(m.Top-v.ClientHeight*c.Align.Ratio()))
}

// Scroller issues scroll commands. It remembers the inputs of the last
// command, so repeating an update with unchanged geometry never scrolls twice.
type Scroller struct {
	Config ScrollConfig

	issued bool
	mark   Mark
	view   Viewport
}

// NewScroller returns a scroller using cfg.
func NewScroller(cfg ScrollConfig) *Scroller {
	return &Scroller{Config: cfg}
}

// Update returns the position to scroll to and true when a scroll should be
// issued for the given mark and viewport.
func (s *Scroller) Update(m Mark, v Viewport) (float64, bool) {
	if !s.Config.NeedsScroll(m, v) {
		return 0, false
	}
	if s.issued && s.mark == m && s.view == v {
		return 0, false
	}
	target := s.Config.Target(m, v)
	if target == v.ScrollTop {
		// Already where a scroll would land; nothing to do.
		return 0, false
	}
	s.issued, s.mark, s.view = true, m, v
	return target, true
}

// Reset forgets the last issued command.
func (s *Scroller) Reset() {
	s.issued = false
	s.mark = Mark{}
	s.view = Viewport{}
}
