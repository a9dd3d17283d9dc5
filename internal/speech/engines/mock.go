package engines

import (
	"context"
	"sync"
	"time"
	"unicode"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
	"github.com/dgnsrekt/karaoke/internal/speech"
)

// DefaultWordsPerMinute is the mock engine's speaking rate at speed 1.0.
const DefaultWordsPerMinute = 160

// Mock is a silent native engine that reports word boundaries on a
// words-per-minute schedule. It stands in when no speech engine is
// installed.
type Mock struct {
	wpm int
}

// NewMock creates a mock engine speaking wpm words per minute.
func NewMock(wpm int) *Mock {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	return &Mock{wpm: wpm}
}

// Name implements speech.NativeEngine.
func (m *Mock) Name() string { return "mock" }

// Close implements speech.NativeEngine.
func (m *Mock) Close() error { return nil }

// Speak implements speech.NativeEngine.
func (m *Mock) Speak(_ context.Context, req speech.Request) (speech.Playback, error) {
	speed := req.Options.Speed
	if speed <= 0 {
		speed = 1
	}
	interval := time.Duration(float64(time.Minute) / float64(m.wpm) / speed)

	p := &mockPlayback{
		id:       req.ID,
		starts:   wordStarts(req.Text),
		interval: interval,
		events:   make(chan karaoke.Event),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		pause:    make(chan bool),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// wordStarts returns the rune offsets where words begin.
func wordStarts(text string) []int {
	var starts []int
	inWord := false
	for i, r := range []rune(text) {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			starts = append(starts, i)
			inWord = true
		}
	}
	return starts
}

type mockPlayback struct {
	id       string
	starts   []int
	interval time.Duration

	events chan karaoke.Event
	done   chan struct{}
	stop   chan struct{}
	pause  chan bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (p *mockPlayback) run() {
	defer p.wg.Done()
	defer close(p.done)
	defer close(p.events)

	for _, idx := range p.starts {
		select {
		case p.events <- karaoke.BoundaryEvent{Utterance: p.id, CharIndex: idx}:
		case <-p.stop:
			return
		}
		if !p.wait(p.interval) {
			return
		}
	}
}

// wait sleeps for d of unpaused time. It returns false when stopped.
func (p *mockPlayback) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	remaining := d
	started := time.Now()
	paused := false

	for {
		select {
		case <-p.stop:
			return false
		case pause := <-p.pause:
			switch {
			case pause && !paused:
				timer.Stop()
				remaining -= time.Since(started)
				paused = true
			case !pause && paused:
				started = time.Now()
				timer.Reset(max(remaining, 0))
				paused = false
			}
		case <-timer.C:
			return true
		}
	}
}

func (p *mockPlayback) Events() <-chan karaoke.Event { return p.events }

func (p *mockPlayback) Done() <-chan struct{} { return p.done }

func (p *mockPlayback) Err() error { return nil }

func (p *mockPlayback) Pause() error { return p.setPaused(true) }

func (p *mockPlayback) Resume() error { return p.setPaused(false) }

func (p *mockPlayback) setPaused(v bool) error {
	select {
	case p.pause <- v:
	case <-p.done:
	case <-p.stop:
	}
	return nil
}

func (p *mockPlayback) Stop() error {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
	return nil
}
