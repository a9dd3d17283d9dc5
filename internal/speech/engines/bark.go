package engines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/karaoke/internal/speech"
)

const (
	// DefaultBarkURL is the hosted Bark inference endpoint.
	DefaultBarkURL = "https://api-inference.huggingface.co/models/suno/bark"

	// DefaultLocalBarkURL is where a self-hosted Bark server is expected.
	DefaultLocalBarkURL = "http://localhost:8000/generate"

	// DefaultBarkVoice is used when no voice is selected.
	DefaultBarkVoice = "v2/ru_speaker_0"
)

// BarkConfig holds configuration for the Bark engine.
type BarkConfig struct {
	// APIKey is the Hugging Face token. Without it Synthesize returns
	// speech.ErrUseNative.
	APIKey string

	// URL defaults to DefaultBarkURL.
	URL string

	// LocalURL is tried when the hosted endpoint fails. Defaults to
	// DefaultLocalBarkURL.
	LocalURL string

	// Timeout for a single request (defaults to 60s).
	Timeout time.Duration

	// Rate limit requests per minute (defaults to 50).
	RequestsPerMinute int

	HTTPClient *http.Client
	Logger     *log.Logger
}

// Bark synthesizes speech with the Bark model, hosted or local.
type Bark struct {
	apiKey   string
	url      string
	localURL string
	http     httpProvider
	log      *log.Logger
}

type barkRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	Language     string  `json:"language"`
	Speed        float64 `json:"speed"`
	Temperature  float64 `json:"temperature"`
	TopK         int     `json:"top_k"`
	TopP         float64 `json:"top_p"`
	WaveformTemp float64 `json:"waveform_temp"`
}

// NewBark creates a new Bark engine.
func NewBark(config BarkConfig) *Bark {
	if config.URL == "" {
		config.URL = DefaultBarkURL
	}
	if config.LocalURL == "" {
		config.LocalURL = DefaultLocalBarkURL
	}
	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient(config.Timeout)
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Bark{
		apiKey:   config.APIKey,
		url:      config.URL,
		localURL: config.LocalURL,
		http: httpProvider{
			name:    "Bark",
			client:  client,
			limiter: newLimiter(config.RequestsPerMinute),
		},
		log: logger.WithPrefix("bark"),
	}
}

// Name implements speech.Synthesizer.
func (b *Bark) Name() string { return "bark" }

// Synthesize returns WAV audio for req.Text. Without an API key it asks for
// the native engine; when the hosted endpoint fails it retries the local one.
func (b *Bark) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	if b.apiKey == "" {
		b.log.Debug("Hugging Face API key not configured")
		return nil, speech.ErrUseNative
	}

	body := newBarkRequest(req)

	audio, err := b.http.postAudio(ctx, b.url, map[string]string{
		"Authorization": "Bearer " + b.apiKey,
	}, body)
	if err == nil {
		return withWAV(audio), nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	b.log.Warn("hosted Bark failed, trying local server", "err", err, "url", b.localURL)

	audio, localErr := b.http.postAudio(ctx, b.localURL, nil, body)
	if localErr != nil {
		return nil, fmt.Errorf("failed to generate audio with Bark: %w", errors.Join(err, localErr))
	}
	return withWAV(audio), nil
}

func newBarkRequest(req speech.Request) barkRequest {
	s := req.Options.Bark
	defaults := speech.DefaultOptions().Bark

	voice := req.Options.Voice
	if voice == "" {
		voice = DefaultBarkVoice
	}

	return barkRequest{
		Text:         req.Text,
		VoiceID:      voice,
		Language:     req.Options.BaseLanguage(),
		Speed:        orDefault(s.Speed, defaults.Speed),
		Temperature:  orDefault(s.Temperature, defaults.Temperature),
		TopK:         int(orDefault(float64(s.TopK), float64(defaults.TopK))),
		TopP:         orDefault(s.TopP, defaults.TopP),
		WaveformTemp: orDefault(s.WaveformTemp, defaults.WaveformTemp),
	}
}

// orDefault treats zero as unset.
func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func withWAV(a *speech.Audio) *speech.Audio {
	if !strings.HasPrefix(a.MIME, "audio/") {
		a.MIME = "audio/wav"
	}
	return a
}

// BarkVoice is one of the Bark speaker presets.
type BarkVoice struct {
	ID       string
	Name     string
	Language string
	Gender   string
}

// BarkVoices lists the built-in Bark speaker presets.
var BarkVoices = []BarkVoice{
	{"v2/ru_speaker_0", "Russian (Male)", "ru", "male"},
	{"v2/ru_speaker_1", "Russian (Female)", "ru", "female"},
	{"v2/ru_speaker_2", "Russian (Male 2)", "ru", "male"},
	{"v2/ru_speaker_3", "Russian (Female 2)", "ru", "female"},
	{"v2/en_speaker_0", "English (Male)", "en", "male"},
	{"v2/en_speaker_1", "English (Female)", "en", "female"},
	{"v2/en_speaker_2", "English (Male 2)", "en", "male"},
	{"v2/en_speaker_3", "English (Female 2)", "en", "female"},
	{"v2/en_speaker_4", "English (Male 3)", "en", "male"},
	{"v2/en_speaker_5", "English (Female 3)", "en", "female"},
	{"v2/en_speaker_6", "English (Male 4)", "en", "male"},
	{"v2/en_speaker_7", "English (Female 4)", "en", "female"},
	{"v2/en_speaker_8", "English (Male 5)", "en", "male"},
	{"v2/en_speaker_9", "English (Female 5)", "en", "female"},
	{"v2/tr_speaker_0", "Turkish (Male)", "tr", "male"},
	{"v2/tr_speaker_1", "Turkish (Female)", "tr", "female"},
	{"v2/kk_speaker_0", "Kazakh (Male)", "kk", "male"},
	{"v2/kk_speaker_1", "Kazakh (Female)", "kk", "female"},
	{"v2/zh_speaker_0", "Chinese (Male)", "zh", "male"},
	{"v2/zh_speaker_1", "Chinese (Female)", "zh", "female"},
	{"v2/ja_speaker_0", "Japanese (Male)", "ja", "male"},
	{"v2/ja_speaker_1", "Japanese (Female)", "ja", "female"},
	{"v2/ko_speaker_0", "Korean (Male)", "ko", "male"},
	{"v2/ko_speaker_1", "Korean (Female)", "ko", "female"},
	{"v2/fr_speaker_0", "French (Male)", "fr", "male"},
	{"v2/fr_speaker_1", "French (Female)", "fr", "female"},
	{"v2/de_speaker_0", "German (Male)", "de", "male"},
	{"v2/de_speaker_1", "German (Female)", "de", "female"},
	{"v2/es_speaker_0", "Spanish (Male)", "es", "male"},
	{"v2/es_speaker_1", "Spanish (Female)", "es", "female"},
	{"v2/it_speaker_0", "Italian (Male)", "it", "male"},
	{"v2/it_speaker_1", "Italian (Female)", "it", "female"},
	{"v2/pt_speaker_0", "Portuguese (Male)", "pt", "male"},
	{"v2/pt_speaker_1", "Portuguese (Female)", "pt", "female"},
}

// BarkVoicesFor returns the presets for a base language, or all of them
// when language is empty.
func BarkVoicesFor(language string) []BarkVoice {
	if language == "" {
		return BarkVoices
	}
	var out []BarkVoice
	for _, v := range BarkVoices {
		if v.Language == language {
			out = append(out, v)
		}
	}
	return out
}
