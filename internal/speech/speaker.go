package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgnsrekt/karaoke/internal/cache"
	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

// Config holds speaker settings.
type Config struct {
	// Tick is how often decoded audio reports its position. Zero means
	// DefaultTickRate.
	Tick time.Duration
}

// Dependencies are the engines and services a Speaker drives. Native is
// required; Decoder and Player are required when a hosted engine is set.
type Dependencies struct {
	Native   NativeEngine
	Neural   Synthesizer
	Fallback Synthesizer

	Decoder Decoder
	Player  Player

	Cache    Cache
	Recorder Recorder
	Logger   *log.Logger
}

// Speaker starts utterances and owns the one that is currently playing.
type Speaker struct {
	cfg  Config
	deps Dependencies
	log  *log.Logger

	// speakMu serializes Speak so only one utterance is ever started.
	speakMu sync.Mutex

	mu        sync.Mutex
	current   *Utterance
	status    Status
	lastError error
}

// NewSpeaker creates a speaker with the given configuration and dependencies.
func NewSpeaker(cfg Config, deps Dependencies) (*Speaker, error) {
	if deps.Native == nil {
		return nil, fmt.Errorf("native engine cannot be nil")
	}
	if deps.Neural != nil || deps.Fallback != nil {
		if deps.Decoder == nil {
			return nil, fmt.Errorf("decoder cannot be nil")
		}
		if deps.Player == nil {
			return nil, fmt.Errorf("player cannot be nil")
		}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTickRate
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Speaker{
		cfg:    cfg,
		deps:   deps,
		log:    logger.WithPrefix("speech"),
		status: StatusIdle,
	}, nil
}

// Speak stops whatever is playing and starts speaking text.
func (s *Speaker) Speak(ctx context.Context, text string, opts Options) (*Utterance, error) {
	ctx, span := tracer.Start(ctx, "speak", trace.WithAttributes(
		attribute.String("speech.engine", string(opts.Engine)),
		attribute.String("speech.language", opts.Language),
		attribute.Int("speech.text_length", len(text)),
	))
	defer span.End()

	u, err := s.speak(ctx, text, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("speech.utterance_id", u.ID),
		attribute.String("speech.engine_used", u.EngineName),
	)
	return u, nil
}

func (s *Speaker) speak(ctx context.Context, text string, opts Options) (*Utterance, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	_ = s.Stop()
	s.setStatus(StatusWaiting)

	id := uuid.NewString()

	var (
		u   *Utterance
		err error
	)
	switch opts.Engine {
	case EngineNeural:
		u, err = s.speakNeural(ctx, id, text, opts)
	case EngineFallback:
		u, err = s.speakFallback(ctx, id, text, opts)
	default:
		u, err = s.speakNative(ctx, id, text, opts)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = u
	s.status = StatusProcessing
	s.lastError = nil
	s.mu.Unlock()

	s.record(u)
	go s.watch(u)

	s.log.Debug("utterance started", "id", u.ID, "engine", u.EngineName, "mode", u.Mode)
	return u, nil
}

func (s *Speaker) speakNative(ctx context.Context, id, text string, opts Options) (*Utterance, error) {
	normalized := karaoke.Normalize(text)
	if normalized == "" {
		return nil, ErrEmptyText
	}

	if opts.Engine != EngineNative {
		// Hosted voice ids mean nothing to the native engine.
		opts.Voice = ""
		opts.Engine = EngineNative
	}
	pb, err := s.deps.Native.Speak(ctx, Request{ID: id, Text: normalized, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.deps.Native.Name(), err)
	}

	return &Utterance{
		ID:         id,
		Text:       normalized,
		Mode:       karaoke.ModeExact,
		Engine:     EngineNative,
		EngineName: s.deps.Native.Name(),
		Options:    opts,
		Started:    time.Now(),
		playback:   pb,
	}, nil
}

func (s *Speaker) speakNeural(ctx context.Context, id, text string, opts Options) (*Utterance, error) {
	if s.deps.Neural == nil {
		s.log.Warn("neural engine not configured, using native engine")
		return s.speakNative(ctx, id, text, opts)
	}
	if opts.Voice == "" {
		s.log.Warn("no voice selected for neural engine, using native engine")
		return s.speakNative(ctx, id, text, opts)
	}
	return s.speakAudio(ctx, s.deps.Neural, id, text, opts)
}

func (s *Speaker) speakFallback(ctx context.Context, id, text string, opts Options) (*Utterance, error) {
	if s.deps.Fallback == nil {
		s.log.Warn("fallback engine not configured, using native engine")
		return s.speakNative(ctx, id, text, opts)
	}
	u, err := s.speakAudio(ctx, s.deps.Fallback, id, text, opts)
	if errors.Is(err, ErrUseNative) {
		s.log.Info("fallback engine unavailable, using native engine")
		return s.speakNative(ctx, id, text, opts)
	}
	return u, err
}

// CacheKey returns the key hosted audio for text is cached under.
func CacheKey(text string, opts Options) string {
	return cache.Key(string(opts.Engine), opts.Voice, opts.Language, text)
}

// speakAudio runs the hosted path: cache lookup, synthesis, decode and play.
func (s *Speaker) speakAudio(ctx context.Context, syn Synthesizer, id, text string, opts Options) (*Utterance, error) {
	key := CacheKey(text, opts)

	audio, err := s.audioFor(ctx, syn, key, Request{ID: id, Text: text, Options: opts})
	if err != nil {
		return nil, err
	}

	pcm, err := s.deps.Decoder.Decode(ctx, audio, opts.Speed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	if err := s.deps.Player.SetVolume(opts.Volume); err != nil {
		s.log.Warn("failed to set volume", "err", err)
	}

	pb, err := newAudioPlayback(id, s.deps.Player, pcm, s.cfg.Tick)
	if err != nil {
		return nil, err
	}

	return &Utterance{
		ID:         id,
		Text:       text,
		Mode:       karaoke.ModeApproximate,
		Engine:     opts.Engine,
		EngineName: syn.Name(),
		Audio:      audio,
		CacheKey:   key,
		Options:    opts,
		Started:    time.Now(),
		playback:   pb,
	}, nil
}

func (s *Speaker) audioFor(ctx context.Context, syn Synthesizer, key string, req Request) (*Audio, error) {
	if s.deps.Cache != nil {
		if data, ok := s.deps.Cache.Get(key); ok {
			s.log.Debug("audio cache hit", "key", key)
			return &Audio{Data: data}, nil
		}
	}

	audio, err := syn.Synthesize(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUseNative) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", syn.Name(), err)
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, fmt.Errorf("%s: %w", syn.Name(), ErrNoAudio)
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Put(key, audio.Data); err != nil {
			s.log.Warn("failed to cache audio", "key", key, "err", err)
		}
	}
	return audio, nil
}

func (s *Speaker) record(u *Utterance) {
	if s.deps.Recorder == nil {
		return
	}
	err := s.deps.Recorder.Record(Record{
		Text:     u.Text,
		Language: u.Options.Language,
		Engine:   u.Engine,
		Voice:    u.Options.Voice,
		CacheKey: u.CacheKey,
		Time:     u.Started,
	})
	if err != nil {
		s.log.Warn("failed to record history", "err", err)
	}
}

// watch settles the status once u ends, unless another utterance replaced
// it in the meantime.
func (s *Speaker) watch(u *Utterance) {
	<-u.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != u {
		return
	}
	s.current = nil
	if err := u.Err(); err != nil && !errors.Is(err, ErrStopped) {
		s.status = StatusError
		s.lastError = err
		s.log.Error("utterance failed", "id", u.ID, "err", err)
		return
	}
	s.status = StatusReady
}

// Stop halts the current utterance, if any.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	u := s.current
	s.current = nil
	if u != nil {
		s.status = StatusIdle
	}
	s.mu.Unlock()

	if u == nil {
		return nil
	}
	return u.Stop()
}

// Pause pauses the current utterance.
func (s *Speaker) Pause() error {
	u := s.Current()
	if u == nil {
		return ErrNoUtterance
	}
	return u.Pause()
}

// Resume resumes the current utterance.
func (s *Speaker) Resume() error {
	u := s.Current()
	if u == nil {
		return ErrNoUtterance
	}
	return u.Resume()
}

// Current returns the playing utterance, or nil.
func (s *Speaker) Current() *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Status returns the speaker status.
func (s *Speaker) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the error that put the speaker in StatusError.
func (s *Speaker) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Close stops playback and releases the native engine.
func (s *Speaker) Close() error {
	_ = s.Stop()
	return s.deps.Native.Close()
}

func (s *Speaker) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Speaker) fail(err error) {
	s.mu.Lock()
	s.status = StatusError
	s.lastError = err
	s.mu.Unlock()
}
