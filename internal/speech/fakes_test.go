package speech

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

// fakePlayer reports a fixed position and finishes when told to.
type fakePlayer struct {
	mu      sync.Mutex
	played  [][]byte
	done    chan struct{}
	closed  bool
	pos     time.Duration
	dur     time.Duration
	paused  bool
	stopped int
	volume  float64
}

func (p *fakePlayer) Play(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, pcm)
	p.done = make(chan struct{})
	p.closed = false
	if p.dur == 0 {
		p.dur = 10 * time.Second
	}
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
	p.closeLocked()
	return nil
}

func (p *fakePlayer) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	return nil
}

func (p *fakePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *fakePlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dur
}

func (p *fakePlayer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *fakePlayer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *fakePlayer) closeLocked() {
	if p.done != nil && !p.closed {
		close(p.done)
		p.closed = true
	}
}

// fakePlayback is the playback handed out by fakeNative.
type fakePlayback struct {
	events  chan karaoke.Event
	done    chan struct{}
	once    sync.Once
	err     error
	paused  bool
	stopped bool
	mu      sync.Mutex
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{
		events: make(chan karaoke.Event, 16),
		done:   make(chan struct{}),
	}
}

func (p *fakePlayback) Events() <-chan karaoke.Event { return p.events }
func (p *fakePlayback) Done() <-chan struct{}        { return p.done }

func (p *fakePlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePlayback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *fakePlayback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *fakePlayback) Stop() error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.end(nil)
	return nil
}

func (p *fakePlayback) end(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.events)
		close(p.done)
	})
}

func (p *fakePlayback) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeNative struct {
	mu        sync.Mutex
	requests  []Request
	playbacks []*fakePlayback
	err       error
	closed    bool

	// gate, when set, holds every Speak until it is closed.
	gate chan struct{}
}

func (e *fakeNative) Name() string { return "fake-native" }

func (e *fakeNative) Speak(_ context.Context, req Request) (Playback, error) {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.requests = append(e.requests, req)
	pb := newFakePlayback()
	e.playbacks = append(e.playbacks, pb)
	return pb, nil
}

func (e *fakeNative) Close() error {
	e.closed = true
	return nil
}

func (e *fakeNative) last() (Request, *fakePlayback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		return Request{}, nil
	}
	return e.requests[len(e.requests)-1], e.playbacks[len(e.playbacks)-1]
}

type fakeSynth struct {
	name  string
	audio *Audio
	err   error
	calls int
	last  Request
}

func (s *fakeSynth) Name() string { return s.name }

func (s *fakeSynth) Synthesize(_ context.Context, req Request) (*Audio, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

type fakeDecoder struct {
	speed float64
	err   error
}

func (d *fakeDecoder) Decode(_ context.Context, audio *Audio, speed float64) ([]byte, error) {
	d.speed = speed
	if d.err != nil {
		return nil, d.err
	}
	return append([]byte(nil), audio.Data...), nil
}

type fakeCache struct {
	items map[string][]byte
	puts  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string][]byte{}}
}

func (c *fakeCache) Get(key string) ([]byte, bool) {
	b, ok := c.items[key]
	return b, ok
}

func (c *fakeCache) Put(key string, data []byte) error {
	c.puts++
	c.items[key] = data
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *fakeRecorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}
