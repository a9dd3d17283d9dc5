package speech

import "errors"

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text is empty")

	// ErrUnknownEngine is returned for an unrecognized engine name.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrInvalidLanguage is returned for a malformed language tag.
	ErrInvalidLanguage = errors.New("invalid language tag")

	// ErrSpeedOutOfRange is returned when speed is outside valid range.
	ErrSpeedOutOfRange = errors.New("speed must be between 0.5 and 2.0")

	// ErrUseNative is returned by a synthesizer that cannot serve the request
	// and asks for the native engine instead.
	ErrUseNative = errors.New("synthesizer unavailable, use the native engine")

	// ErrNoAudio is returned when saving an utterance that has no audio.
	ErrNoAudio = errors.New("utterance has no audio")

	// ErrNoUtterance is returned by controls when nothing is playing.
	ErrNoUtterance = errors.New("no utterance")

	// ErrStopped is reported by a playback that was stopped before it ended.
	ErrStopped = errors.New("playback stopped")
)
