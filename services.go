package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/karaoke/internal/audio"
	"github.com/dgnsrekt/karaoke/internal/cache"
	"github.com/dgnsrekt/karaoke/internal/history"
	"github.com/dgnsrekt/karaoke/internal/speech"
	"github.com/dgnsrekt/karaoke/internal/speech/engines"
)

// services are the long-lived pieces behind a speaking run.
type services struct {
	speaker *speech.Speaker
	history *history.Store
	cache   *cache.Manager
}

func newServices(ctx context.Context, s settings) (*services, error) {
	svc := &services{}
	deps := speech.Dependencies{
		Native: nativeEngine(ctx, s),
		Logger: log.Default(),
	}

	if s.HistoryEnabled {
		h, err := history.Open(s.HistoryFile)
		if err != nil {
			// A broken history file should not keep anyone from speaking.
			log.Warn("History disabled", "error", err)
		} else {
			svc.history = h
			deps.Recorder = h
		}
	}

	// Hosted engines only matter when one of them is selected.
	if s.Options.Engine != speech.EngineNative {
		if s.Secrets.ElevenLabsKey != "" {
			deps.Neural = engines.NewElevenLabs(engines.ElevenLabsConfig{
				APIKey:  s.Secrets.ElevenLabsKey,
				ModelID: s.Options.Neural.ModelID,
			})
		}
		deps.Fallback = engines.NewBark(engines.BarkConfig{
			APIKey:   s.Secrets.HuggingFaceKey,
			LocalURL: s.Secrets.LocalBarkURL,
			Logger:   log.Default(),
		})
		deps.Decoder = audio.NewDecoder(audio.DecoderConfig{})
		deps.Player = newPlayer()

		if s.CacheEnabled {
			c, err := cache.NewManager(s.Cache, log.Default())
			if err != nil {
				log.Warn("Audio cache disabled", "error", err)
			} else {
				svc.cache = c
				deps.Cache = c
			}
		}
	}

	sp, err := speech.NewSpeaker(speech.Config{Tick: s.Tick}, deps)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("unable to create speaker: %w", err)
	}
	svc.speaker = sp
	return svc, nil
}

// Close stops speaking and flushes the cache.
func (svc *services) Close() error {
	var errs []error
	if svc.speaker != nil {
		errs = append(errs, svc.speaker.Close())
	}
	if svc.cache != nil {
		errs = append(errs, svc.cache.Close())
	}
	return errors.Join(errs...)
}

// nativeEngine picks Speech Dispatcher when its socket is there and the
// silent mock otherwise.
func nativeEngine(ctx context.Context, s settings) speech.NativeEngine {
	sd := engines.NewSpeechd(engines.SpeechdConfig{
		SocketPath: s.SpeechdSocket,
		Logger:     log.Default(),
	})

	switch s.Native {
	case nativeSpeechd:
		return sd
	case nativeMock:
		return engines.NewMock(s.WPM)
	}

	if err := sd.Available(ctx); err != nil {
		log.Warn("Highlighting without sound", "error", err)
		return engines.NewMock(s.WPM)
	}
	log.Debug("Using speech-dispatcher", "socket", sd.Socket())
	return sd
}

// newPlayer opens the audio device, falling back to a silent player so
// highlighting still works without sound.
func newPlayer() speech.Player {
	p, err := audio.NewPlayer(audio.DefaultPlayerConfig())
	if err != nil {
		log.Warn("Audio device unavailable, playing silently", "error", err)
		fmt.Fprintln(os.Stderr, faint("No audio device, playing silently."))
		return audio.NewMockPlayer(audio.DefaultPlayerConfig())
	}
	return p
}
