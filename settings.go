package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/karaoke/internal/cache"
	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
	"github.com/dgnsrekt/karaoke/ui"
)

const (
	minTick = 10 * time.Millisecond
	maxTick = 5 * time.Second
)

// Native engine selection.
const (
	nativeAuto    = "auto"
	nativeSpeechd = "speechd"
	nativeMock    = "mock"
)

// secrets are read from the environment only, never from the config file.
type secrets struct {
	ElevenLabsKey  string `env:"ELEVENLABS_API_KEY"`
	HuggingFaceKey string `env:"HUGGINGFACE_API_KEY"`
	LocalBarkURL   string `env:"LOCAL_BARK_URL"`
}

// settings is the validated configuration of one run.
type settings struct {
	Options speech.Options
	Scroll  karaoke.ScrollConfig
	Tick    time.Duration

	Markdown bool
	Plain    bool
	Output   string
	Mouse    bool

	Native        string
	SpeechdSocket string
	WPM           int

	Cache        cache.Config
	CacheEnabled bool

	HistoryEnabled bool
	HistoryFile    string

	Secrets secrets
}

// loadSettings reads and validates everything viper knows about.
func loadSettings() (settings, error) {
	var s settings

	kind, err := speech.ParseEngineKind(viper.GetString("engine"))
	if err != nil {
		return s, err
	}

	opts := speech.DefaultOptions()
	opts.Engine = kind
	opts.Language = viper.GetString("language")
	opts.Voice = viper.GetString("voice")
	opts.Speed = viper.GetFloat64("speed")
	opts.Pitch = viper.GetFloat64("pitch")
	opts.Volume = viper.GetFloat64("volume")
	opts.Neural = speech.NeuralSettings{
		ModelID:         viper.GetString("neural.model_id"),
		Stability:       viper.GetFloat64("neural.stability"),
		SimilarityBoost: viper.GetFloat64("neural.similarity_boost"),
		Style:           viper.GetFloat64("neural.style"),
		UseSpeakerBoost: viper.GetBool("neural.speaker_boost"),
	}
	opts.Bark = speech.BarkSettings{
		Speed:        opts.Speed,
		Temperature:  viper.GetFloat64("fallback.temperature"),
		TopK:         viper.GetInt("fallback.top_k"),
		TopP:         viper.GetFloat64("fallback.top_p"),
		WaveformTemp: viper.GetFloat64("fallback.waveform_temp"),
	}
	if err := opts.Validate(); err != nil {
		return s, err
	}
	s.Options = opts

	align, err := karaoke.ParseAlign(viper.GetString("scroll.align"))
	if err != nil {
		return s, err
	}
	margin := viper.GetFloat64("scroll.margin")
	if margin < 0 {
		return s, fmt.Errorf("scroll margin must not be negative, got %v", margin)
	}
	s.Scroll = karaoke.ScrollConfig{Align: align, Margin: margin}

	s.Tick = viper.GetDuration("tick")
	if s.Tick < minTick || s.Tick > maxTick {
		return s, fmt.Errorf("tick must be between %s and %s, got %s", minTick, maxTick, s.Tick)
	}

	s.Markdown = viper.GetBool("markdown")
	s.Plain = viper.GetBool("plain")
	s.Mouse = viper.GetBool("mouse")
	if s.Output = viper.GetString("output"); s.Output != "" {
		if s.Output, err = homedir.Expand(s.Output); err != nil {
			return s, fmt.Errorf("invalid output path: %w", err)
		}
	}

	s.Native = strings.ToLower(viper.GetString("native.engine"))
	switch s.Native {
	case nativeAuto, nativeSpeechd, nativeMock:
	default:
		return s, fmt.Errorf("unknown native engine %q: use auto, speechd or mock", s.Native)
	}
	s.SpeechdSocket = viper.GetString("native.socket")
	s.WPM = viper.GetInt("native.wpm")

	if s.Cache, s.CacheEnabled, err = cacheConfig(); err != nil {
		return s, err
	}

	s.HistoryEnabled = viper.GetBool("history.enabled")
	if s.HistoryFile, err = historyFile(); err != nil {
		return s, err
	}

	if s.Secrets, err = env.ParseAs[secrets](); err != nil {
		return s, fmt.Errorf("error parsing environment: %w", err)
	}
	return s, nil
}

func cacheConfig() (cache.Config, bool, error) {
	dir := viper.GetString("cache.dir")
	if dir == "" {
		base, err := gap.NewScope(gap.User, "karaoke").CacheDir()
		if err != nil {
			return cache.Config{}, false, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(base, "audio")
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return cache.Config{}, false, fmt.Errorf("invalid cache directory: %w", err)
	}

	cfg := cache.DefaultConfig(dir)
	cfg.MemoryCapacity = viper.GetInt64("cache.memory_mb") << 20
	cfg.DiskCapacity = viper.GetInt64("cache.disk_mb") << 20
	cfg.CompressionLevel = viper.GetInt("cache.compression")
	cfg.TTL = viper.GetDuration("cache.ttl")

	if cfg.MemoryCapacity <= 0 {
		return cfg, false, errors.New("cache memory_mb must be positive")
	}
	if cfg.DiskCapacity <= 0 {
		// Memory only.
		cfg.Dir = ""
	}
	if cfg.CompressionLevel < 0 || cfg.CompressionLevel > 22 {
		return cfg, false, fmt.Errorf("cache compression must be between 0 and 22, got %d", cfg.CompressionLevel)
	}
	return cfg, viper.GetBool("cache.enabled"), nil
}

func historyFile() (string, error) {
	if f := viper.GetString("history.file"); f != "" {
		return homedir.Expand(f)
	}
	f, err := gap.NewScope(gap.User, "karaoke").DataPath("history.json")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return f, nil
}

// uiConfig combines the environment-driven TUI settings with the run's
// settings.
func (s settings) uiConfig() (ui.Config, error) {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %v", err)
	}
	cfg.EnableMouse = cfg.EnableMouse || s.Mouse
	cfg.Options = s.Options
	cfg.Scroll = s.Scroll
	return cfg, nil
}
