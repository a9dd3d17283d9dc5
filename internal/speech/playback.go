package speech

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

// DefaultTickRate is how often decoded audio reports its position.
const DefaultTickRate = 250 * time.Millisecond

// audioPlayback plays decoded audio and reports its position as time
// updates on a fixed tick. Events holds only the newest update, so playback
// runs to the end whether or not anyone reads them.
type audioPlayback struct {
	id     string
	player Player
	tick   time.Duration

	events chan karaoke.Event
	done   chan struct{}
	stop   chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// newAudioPlayback starts playing pcm on player.
func newAudioPlayback(id string, player Player, pcm []byte, tick time.Duration) (*audioPlayback, error) {
	if len(pcm) == 0 {
		return nil, errors.New("decoded audio is empty")
	}
	if tick <= 0 {
		tick = DefaultTickRate
	}

	p := &audioPlayback{
		id:     id,
		player: player,
		tick:   tick,
		events: make(chan karaoke.Event, 1),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}

	if err := player.Play(pcm); err != nil {
		return nil, fmt.Errorf("failed to play audio: %w", err)
	}

	p.wg.Add(1)
	go p.loop(player.Done())

	return p, nil
}

func (p *audioPlayback) loop(finished <-chan struct{}) {
	defer p.wg.Done()
	defer close(p.done)
	defer close(p.events)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return

		case <-finished:
			// Final tick at the end so the last word is shown.
			d := p.player.Duration().Seconds()
			p.send(karaoke.TimeUpdateEvent{
				Utterance: p.id,
				State:     karaoke.PlaybackState{CurrentTime: d, Duration: d},
			})
			return

		case <-ticker.C:
			ev := karaoke.TimeUpdateEvent{
				Utterance: p.id,
				State: karaoke.PlaybackState{
					CurrentTime: p.player.Position().Seconds(),
					Duration:    p.player.Duration().Seconds(),
				},
			}
			if !p.send(ev) {
				return
			}
		}
	}
}

// send queues ev in place of any update not yet read. It returns false once
// the playback is being stopped.
func (p *audioPlayback) send(ev karaoke.Event) bool {
	for {
		select {
		case <-p.stop:
			return false
		default:
		}
		select {
		case p.events <- ev:
			return true
		default:
		}
		// stale
		select {
		case <-p.events:
		default:
		}
	}
}

func (p *audioPlayback) Events() <-chan karaoke.Event { return p.events }

func (p *audioPlayback) Done() <-chan struct{} { return p.done }

// Err is always nil: the player reports no failures once audio started.
func (p *audioPlayback) Err() error { return nil }

func (p *audioPlayback) Pause() error { return p.player.Pause() }

func (p *audioPlayback) Resume() error { return p.player.Resume() }

func (p *audioPlayback) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()
		for range p.events {
		}
		err = p.player.Stop()
	})
	return err
}
