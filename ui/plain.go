package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
)

// RunPlain speaks text without a terminal UI, writing every highlighted
// span to w on its own line. It returns when the utterance ends or ctx is
// cancelled.
func RunPlain(ctx context.Context, w io.Writer, s Speaker, text string, opts speech.Options) error {
	u, err := s.Speak(ctx, text, opts)
	if err != nil {
		return err
	}
	log.Debug("speaking without tui", "id", u.ID, "engine", u.EngineName, "mode", u.Mode)

	session := u.NewSession()
	var werr error
	session.Drain(u, ctx.Done(), func(h karaoke.Highlight) {
		if werr != nil {
			return
		}
		word := h.Span.Word()
		if word == "" {
			return
		}
		_, werr = fmt.Fprintln(w, word)
	})

	if ctx.Err() != nil {
		session.Stop()
		_ = s.Stop()
		<-u.Done()
		return ctx.Err()
	}
	<-u.Done()
	session.Finish()

	if werr != nil {
		return werr
	}
	if err := u.Err(); err != nil && !errors.Is(err, speech.ErrStopped) {
		return err
	}
	return nil
}
