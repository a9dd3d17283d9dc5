package ui

import (
	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
	"github.com/dgnsrekt/karaoke/internal/textsrc"
)

// Config contains TUI-specific configuration.
type Config struct {
	HomeDir     string `env:"HOME"`
	EnableMouse bool   `env:"KARAOKE_MOUSE"`
	Autoplay    bool   `env:"KARAOKE_AUTOPLAY" envDefault:"true"`

	// HighlightColor is the background of the spoken word.
	HighlightColor string `env:"KARAOKE_HIGHLIGHT_COLOR" envDefault:"#F25D94"`

	// Text to speak and where it came from. File sources are watched and
	// reloaded on change.
	Source *textsrc.Source

	Options speech.Options
	Scroll  karaoke.ScrollConfig
}
