package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the state name.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// output is the sound sink a Player drives.
type output interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// Player plays 16-bit PCM and reports position, duration and completion.
// It implements speech.Player.
type Player struct {
	newOutput func(data []byte) output

	sampleRate int
	channels   int
	poll       time.Duration

	volume atomic.Uint64 // float64 bits

	mu       sync.Mutex
	state    PlayerState
	out      output
	data     []byte // kept alive while the output reads it
	duration time.Duration
	clock    clock
	done     chan struct{}
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // Buffer size in bytes
}

// DefaultPlayerConfig returns the default player configuration, matching
// what Decoder produces.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: SampleRate,
		Channels:   Channels,
		BitDepth:   16,
		BufferSize: 4096,
	}
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// NewPlayer opens the audio device. oto allows one context per process, so
// create a single Player and share it.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return newPlayer(config, func(data []byte) output {
		return ctx.NewPlayer(bytes.NewReader(data))
	}), nil
}

// NewMockPlayer returns a player that plays silently in real time. It is
// used when no audio device is available and in tests.
func NewMockPlayer(config PlayerConfig) *Player {
	if config.SampleRate == 0 {
		config = DefaultPlayerConfig()
	}
	return newPlayer(config, func(data []byte) output {
		return &silentOutput{duration: pcmDuration(len(data), config.SampleRate, config.Channels)}
	})
}

func newPlayer(config PlayerConfig, newOutput func([]byte) output) *Player {
	done := make(chan struct{})
	close(done)

	p := &Player{
		newOutput:  newOutput,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		poll:       20 * time.Millisecond,
		state:      StateStopped,
		done:       done,
	}
	p.volume.Store(math.Float64bits(1.0))
	return p
}

// Play starts playing pcm, stopping whatever was playing.
func (p *Player) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return errors.New("audio data is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return errors.New("player is closed")
	}
	p.stopLocked()

	p.data = append([]byte(nil), pcm...)
	p.duration = pcmDuration(len(p.data), p.sampleRate, p.channels)
	p.out = p.newOutput(p.data)
	p.out.SetVolume(p.getVolume())
	p.out.Play()

	p.clock.reset(time.Now())
	p.state = StatePlaying
	p.done = make(chan struct{})

	go p.watch(p.done, p.out)
	return nil
}

// watch ends the playback once out has drained.
func (p *Player) watch(done chan struct{}, out output) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.done != done || (p.state != StatePlaying && p.state != StatePaused) {
			p.mu.Unlock()
			return
		}
		if p.state == StatePlaying && !out.IsPlaying() {
			p.stopLocked()
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", p.state)
	}
	p.out.Pause()
	p.clock.pause(time.Now())
	p.state = StatePaused
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", p.state)
	}
	p.out.Play()
	p.clock.resume(time.Now())
	p.state = StatePlaying
	return nil
}

// Stop stops playback and releases the audio data.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.state != StatePlaying && p.state != StatePaused {
		return
	}
	if p.out != nil {
		p.out.Pause()
		_ = p.out.Close()
		p.out = nil
	}
	p.data = nil
	p.state = StateStopped
	close(p.done)
}

// Close stops playback; the player cannot be used afterwards.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state = StateClosed
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.out != nil {
		p.out.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume() float64 { return p.getVolume() }

func (p *Player) getVolume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Position returns how far into the current audio playback is.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying && p.state != StatePaused {
		return 0
	}
	return min(p.clock.elapsed(time.Now()), p.duration)
}

// Duration returns the length of the current or last played audio.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Done returns a channel closed when the current audio ends or is stopped.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// silentOutput drains in real time without producing sound.
type silentOutput struct {
	mu       sync.Mutex
	duration time.Duration
	clock    clock
	started  bool
	playing  bool
}

func (s *silentOutput) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if !s.started {
		s.clock.reset(now)
		s.started = true
	} else {
		s.clock.resume(now)
	}
	s.playing = true
}

func (s *silentOutput) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.pause(time.Now())
	s.playing = false
}

func (s *silentOutput) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && s.clock.elapsed(time.Now()) < s.duration
}

func (s *silentOutput) SetVolume(float64) {}

func (s *silentOutput) Close() error { return nil }
