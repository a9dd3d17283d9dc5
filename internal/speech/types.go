// Package speech starts utterances on one of three engines and exposes their
// progress as karaoke events.
package speech

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// EngineKind selects the synthesis path.
type EngineKind string

const (
	// EngineNative speaks through a local speech engine that reports word
	// boundaries.
	EngineNative EngineKind = "native"

	// EngineNeural synthesizes with a hosted neural TTS API.
	EngineNeural EngineKind = "neural"

	// EngineFallback synthesizes with the fallback TTS API.
	EngineFallback EngineKind = "fallback"
)

// EngineKinds lists the valid engine kinds.
var EngineKinds = []EngineKind{EngineNative, EngineNeural, EngineFallback}

// ParseEngineKind parses an engine name. A few aliases are accepted.
func ParseEngineKind(s string) (EngineKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native", "browser", "speechd":
		return EngineNative, nil
	case "neural", "elevenlabs":
		return EngineNeural, nil
	case "fallback", "bark":
		return EngineFallback, nil
	default:
		return "", fmt.Errorf("%w: %q (want native, neural or fallback)", ErrUnknownEngine, s)
	}
}

// Status mirrors what the front-end shows while an utterance runs.
type Status int

const (
	// StatusIdle indicates nothing is playing
	StatusIdle Status = iota

	// StatusWaiting indicates synthesis was requested
	StatusWaiting

	// StatusProcessing indicates audio is playing
	StatusProcessing

	// StatusReady indicates the last utterance completed
	StatusReady

	// StatusError indicates the last utterance failed
	StatusError
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWaiting:
		return "waiting"
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// NeuralSettings are the voice settings sent to the neural API.
type NeuralSettings struct {
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
}

// BarkSettings are the generation settings sent to the fallback API.
type BarkSettings struct {
	Speed        float64
	Temperature  float64
	TopK         int
	TopP         float64
	WaveformTemp float64
}

// Options configure a single utterance.
type Options struct {
	Engine   EngineKind
	Language string
	Voice    string
	Speed    float64 // 0.5 to 2.0
	Pitch    float64 // 0.0 to 2.0, 1.0 is the voice default
	Volume   float64 // 0.0 to 1.0

	Neural NeuralSettings
	Bark   BarkSettings
}

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "ru-RU"

// DefaultOptions returns options for the native engine at normal speed.
func DefaultOptions() Options {
	return Options{
		Engine:   EngineNative,
		Language: DefaultLanguage,
		Speed:    1.0,
		Pitch:    1.0,
		Volume:   1.0,
		Neural: NeuralSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			UseSpeakerBoost: true,
		},
		Bark: BarkSettings{
			Speed:        1.0,
			Temperature:  0.3,
			TopK:         20,
			TopP:         0.8,
			WaveformTemp: 0.4,
		},
	}
}

// Validate checks the options and normalizes the language tag.
func (o *Options) Validate() error {
	if o.Engine == "" {
		o.Engine = EngineNative
	}
	if _, err := ParseEngineKind(string(o.Engine)); err != nil {
		return err
	}

	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	tag, err := language.Parse(o.Language)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidLanguage, o.Language, err)
	}
	o.Language = tag.String()

	if o.Speed == 0 {
		o.Speed = 1.0
	}
	if o.Speed < MinSpeed || o.Speed > MaxSpeed {
		return ErrSpeedOutOfRange
	}
	if o.Pitch < 0 || o.Pitch > 2 {
		return fmt.Errorf("pitch must be between 0.0 and 2.0, got %.2f", o.Pitch)
	}
	if o.Volume < 0 || o.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", o.Volume)
	}
	return nil
}

// BaseLanguage returns the primary language subtag, e.g. "ru" for "ru-RU".
func (o Options) BaseLanguage() string {
	tag, err := language.Parse(o.Language)
	if err != nil {
		return strings.ToLower(strings.SplitN(o.Language, "-", 2)[0])
	}
	base, _ := tag.Base()
	return base.String()
}

// Request is one synthesis request handed to an engine.
type Request struct {
	// ID identifies the utterance; engines tag progress events with it.
	ID string

	// Text is exactly what the engine must speak.
	Text string

	Options Options
}

// Audio is encoded audio returned by a hosted engine.
type Audio struct {
	Data []byte

	// MIME is the content type reported by the provider, if any.
	MIME string
}

// Extension returns a file extension for the audio.
func (a *Audio) Extension() string {
	if a == nil {
		return ""
	}
	switch {
	case strings.Contains(a.MIME, "wav"), len(a.Data) >= 4 && string(a.Data[:4]) == "RIFF":
		return ".wav"
	case strings.Contains(a.MIME, "ogg"), len(a.Data) >= 4 && string(a.Data[:4]) == "OggS":
		return ".ogg"
	default:
		return ".mp3"
	}
}

// Record describes a started utterance for the history.
type Record struct {
	Text     string
	Language string
	Engine   EngineKind
	Voice    string
	CacheKey string
	Time     time.Time
}
