package speech

import (
	"context"
	"time"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

// Playback is a running utterance.
type Playback interface {
	// Events delivers progress for the utterance. The channel is closed when
	// the playback ends or is stopped.
	Events() <-chan karaoke.Event

	// Done is closed when the playback has ended for any reason.
	Done() <-chan struct{}

	// Err returns why the playback ended, or nil if it completed or was
	// stopped. Only meaningful after Done is closed.
	Err() error

	// Pause pauses the playback.
	Pause() error

	// Resume resumes a paused playback.
	Resume() error

	// Stop halts the playback. Once Stop returns, no further event is sent
	// on the Events channel.
	Stop() error
}

// NativeEngine speaks text itself and reports word boundaries.
type NativeEngine interface {
	// Name returns the engine name for logs and status.
	Name() string

	// Speak starts speaking req.Text. Boundary events carry rune offsets
	// into req.Text.
	Speak(ctx context.Context, req Request) (Playback, error)

	// Close releases resources held by the engine.
	Close() error
}

// Synthesizer turns text into encoded audio using a hosted service.
type Synthesizer interface {
	// Name returns the engine name for logs and status.
	Name() string

	// Synthesize returns encoded audio for req.Text. It returns ErrUseNative
	// when the request should be spoken by the native engine instead.
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// Decoder converts encoded audio into PCM the player understands.
type Decoder interface {
	Decode(ctx context.Context, audio *Audio, speed float64) ([]byte, error)
}

// Player plays PCM audio.
type Player interface {
	Play(pcm []byte) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(volume float64) error

	// Position returns the current playback position.
	Position() time.Duration

	// Duration returns the length of the audio being played.
	Duration() time.Duration

	// Done returns a channel closed when the current audio finishes or is
	// stopped.
	Done() <-chan struct{}
}

// Cache stores encoded audio by key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// Recorder keeps a history of started utterances.
type Recorder interface {
	Record(r Record) error
}
