package engines

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/karaoke/internal/speech"
)

// DefaultElevenLabsURL is the ElevenLabs API base URL.
const DefaultElevenLabsURL = "https://api.elevenlabs.io"

// ElevenLabsConfig holds configuration for the ElevenLabs engine.
type ElevenLabsConfig struct {
	APIKey string

	// BaseURL defaults to DefaultElevenLabsURL.
	BaseURL string

	// ModelID is sent when set, otherwise the account default model is used.
	ModelID string

	// Timeout for a single request (defaults to 60s).
	Timeout time.Duration

	// Rate limit requests per minute (defaults to 50).
	RequestsPerMinute int

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// ElevenLabs synthesizes speech with the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	modelID string
	http    httpProvider
}

// Voice is an ElevenLabs voice.
type Voice struct {
	ID          string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	PreviewURL  string            `json:"preview_url"`
	Labels      map[string]string `json:"labels"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id,omitempty"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

// NewElevenLabs creates a new ElevenLabs engine. A missing API key is only
// reported when a request is made.
func NewElevenLabs(config ElevenLabsConfig) *ElevenLabs {
	if config.BaseURL == "" {
		config.BaseURL = DefaultElevenLabsURL
	}
	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient(config.Timeout)
	}

	return &ElevenLabs{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		modelID: config.ModelID,
		http: httpProvider{
			name:    "ElevenLabs",
			client:  client,
			limiter: newLimiter(config.RequestsPerMinute),
		},
	}
}

// Name implements speech.Synthesizer.
func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Synthesize returns MP3 audio for req.Text spoken by req.Options.Voice.
func (e *ElevenLabs) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("ElevenLabs %w", ErrMissingAPIKey)
	}
	voice := req.Options.Voice
	if voice == "" {
		return nil, fmt.Errorf("ElevenLabs: voice is required")
	}

	settings := req.Options.Neural
	modelID := settings.ModelID
	if modelID == "" {
		modelID = e.modelID
	}

	body := elevenLabsRequest{
		Text:    req.Text,
		ModelID: modelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
			Style:           settings.Style,
			UseSpeakerBoost: settings.UseSpeakerBoost,
		},
	}

	endpoint := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)
	audio, err := e.http.postAudio(ctx, endpoint, e.headers("audio/mpeg"), body)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(audio.MIME, "audio/") {
		audio.MIME = "audio/mpeg"
	}
	return audio, nil
}

// Voices lists the voices available to the account.
func (e *ElevenLabs) Voices(ctx context.Context) ([]Voice, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("ElevenLabs %w", ErrMissingAPIKey)
	}

	var resp struct {
		Voices []Voice `json:"voices"`
	}
	if err := e.http.getJSON(ctx, e.baseURL+"/v1/voices", e.headers("application/json"), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}
	return resp.Voices, nil
}

func (e *ElevenLabs) headers(accept string) map[string]string {
	return map[string]string{
		"Accept":     accept,
		"xi-api-key": e.apiKey,
	}
}
