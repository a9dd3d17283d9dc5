package speech

import (
	"testing"
	"time"

	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

func TestAudioPlaybackTicks(t *testing.T) {
	player := &fakePlayer{pos: 2 * time.Second, dur: 8 * time.Second}

	pb, err := newAudioPlayback("u1", player, []byte{1, 2, 3}, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("newAudioPlayback() error = %v", err)
	}
	defer pb.Stop()

	select {
	case ev := <-pb.Events():
		tu, ok := ev.(karaoke.TimeUpdateEvent)
		if !ok {
			t.Fatalf("event = %T, want TimeUpdateEvent", ev)
		}
		if tu.Utterance != "u1" {
			t.Errorf("utterance = %q, want u1", tu.Utterance)
		}
		if tu.State.CurrentTime != 2 || tu.State.Duration != 8 {
			t.Errorf("state = %+v, want {2 8}", tu.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}
}

func TestAudioPlaybackFinalTick(t *testing.T) {
	player := &fakePlayer{pos: time.Second, dur: 4 * time.Second}

	pb, err := newAudioPlayback("u1", player, []byte{1}, time.Hour)
	if err != nil {
		t.Fatalf("newAudioPlayback() error = %v", err)
	}
	player.finish()

	var last karaoke.TimeUpdateEvent
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-pb.Events():
			if !ok {
				done = true
				break
			}
			last = ev.(karaoke.TimeUpdateEvent)
		case <-timeout:
			t.Fatal("events channel not closed")
		}
	}

	if last.State.CurrentTime != 4 || last.State.Duration != 4 {
		t.Errorf("final state = %+v, want {4 4}", last.State)
	}

	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
}

func TestAudioPlaybackStop(t *testing.T) {
	player := &fakePlayer{dur: 4 * time.Second}

	pb, err := newAudioPlayback("u1", player, []byte{1}, time.Millisecond)
	if err != nil {
		t.Fatalf("newAudioPlayback() error = %v", err)
	}

	// Nobody reads: a tick is waiting in the channel when Stop runs.
	time.Sleep(10 * time.Millisecond)
	if err := pb.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := pb.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	if _, ok := <-pb.Events(); ok {
		t.Error("event delivered after Stop")
	}
	select {
	case <-pb.Done():
	default:
		t.Error("done not closed after Stop")
	}
	if player.stopped != 1 {
		t.Errorf("player stopped %d times, want 1", player.stopped)
	}
}

func TestAudioPlaybackFinishesUnread(t *testing.T) {
	player := &fakePlayer{pos: time.Second, dur: 3 * time.Second}

	pb, err := newAudioPlayback("u1", player, []byte{1}, time.Millisecond)
	if err != nil {
		t.Fatalf("newAudioPlayback() error = %v", err)
	}

	// Let several ticks go unread before the audio ends.
	time.Sleep(20 * time.Millisecond)
	player.finish()

	select {
	case <-pb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("playback blocked on an unread tick")
	}

	ev, ok := <-pb.Events()
	if !ok {
		t.Fatal("final tick dropped")
	}
	if tu := ev.(karaoke.TimeUpdateEvent); tu.State.CurrentTime != 3 {
		t.Errorf("pending tick = %+v, want the final {3 3}", tu.State)
	}
	if _, ok := <-pb.Events(); ok {
		t.Error("more than one pending tick")
	}
}

func TestAudioPlaybackPauseResume(t *testing.T) {
	player := &fakePlayer{}

	pb, err := newAudioPlayback("u1", player, []byte{1}, time.Hour)
	if err != nil {
		t.Fatalf("newAudioPlayback() error = %v", err)
	}
	defer pb.Stop()

	_ = pb.Pause()
	if !player.paused {
		t.Error("player not paused")
	}
	_ = pb.Resume()
	if player.paused {
		t.Error("player not resumed")
	}
}

func TestAudioPlaybackEmpty(t *testing.T) {
	if _, err := newAudioPlayback("u1", &fakePlayer{}, nil, 0); err == nil {
		t.Error("expected error for empty audio")
	}
}
