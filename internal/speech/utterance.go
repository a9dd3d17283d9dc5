package speech

import (
	"fmt"
	"os"
	"time"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

// Utterance is one text-to-speech invocation, from start to completion,
// stop or error.
type Utterance struct {
	// ID identifies the utterance; all of its events carry it.
	ID string

	// Text is the base string for every highlight: the normalized text on
	// the native path, the input text on the audio paths.
	Text string

	// Mode tells whether highlights are exact or approximate.
	Mode karaoke.Mode

	// Engine is the path that ended up speaking.
	Engine EngineKind

	// EngineName is the concrete engine, e.g. "speechd" or "elevenlabs".
	EngineName string

	// Audio is the encoded audio for the hosted paths, nil otherwise.
	Audio *Audio

	// CacheKey is the audio cache key, empty on the native path.
	CacheKey string

	Options Options
	Started time.Time

	playback Playback
}

// Events implements karaoke.Source.
func (u *Utterance) Events() <-chan karaoke.Event { return u.playback.Events() }

// Done is closed when the utterance ends.
func (u *Utterance) Done() <-chan struct{} { return u.playback.Done() }

// Err returns why the utterance ended early, if it did.
func (u *Utterance) Err() error { return u.playback.Err() }

// Pause pauses the utterance.
func (u *Utterance) Pause() error { return u.playback.Pause() }

// Resume resumes the utterance.
func (u *Utterance) Resume() error { return u.playback.Resume() }

// Stop halts the utterance. No progress event is delivered after Stop
// returns.
func (u *Utterance) Stop() error { return u.playback.Stop() }

// NewSession returns a fresh highlight session for the utterance.
func (u *Utterance) NewSession() *karaoke.Session {
	return karaoke.NewSession(u.ID, u.Text, u.Mode)
}

// Save writes the encoded audio to path.
func (u *Utterance) Save(path string) error {
	if u.Audio == nil || len(u.Audio.Data) == 0 {
		return ErrNoAudio
	}
	if err := os.WriteFile(path, u.Audio.Data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to save audio: %w", err)
	}
	return nil
}
