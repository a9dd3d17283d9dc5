package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/karaoke/internal/cache"
	"github.com/dgnsrekt/karaoke/internal/karaoke"
)

var _ Cache = (*cache.Manager)(nil)

type speakerFixture struct {
	native   *fakeNative
	neural   *fakeSynth
	fallback *fakeSynth
	decoder  *fakeDecoder
	player   *fakePlayer
	cache    *fakeCache
	recorder *fakeRecorder
	speaker  *Speaker
}

func newSpeakerFixture(t *testing.T) *speakerFixture {
	t.Helper()

	f := &speakerFixture{
		native:   &fakeNative{},
		neural:   &fakeSynth{name: "fake-neural", audio: &Audio{Data: []byte("mp3"), MIME: "audio/mpeg"}},
		fallback: &fakeSynth{name: "fake-fallback", audio: &Audio{Data: []byte("wav")}},
		decoder:  &fakeDecoder{},
		player:   &fakePlayer{},
		cache:    newFakeCache(),
		recorder: &fakeRecorder{},
	}

	s, err := NewSpeaker(Config{Tick: time.Hour}, Dependencies{
		Native:   f.native,
		Neural:   f.neural,
		Fallback: f.fallback,
		Decoder:  f.decoder,
		Player:   f.player,
		Cache:    f.cache,
		Recorder: f.recorder,
		Logger:   log.New(os.Stderr),
	})
	if err != nil {
		t.Fatalf("NewSpeaker() error = %v", err)
	}
	f.speaker = s
	t.Cleanup(func() { _ = s.Stop() })
	return f
}

func options(engine EngineKind, voice string) Options {
	opts := DefaultOptions()
	opts.Engine = engine
	opts.Voice = voice
	return opts
}

func waitStatus(t *testing.T, s *Speaker, want Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status = %v, want %v", s.Status(), want)
}

func TestNewSpeakerValidation(t *testing.T) {
	tests := []struct {
		name string
		deps Dependencies
	}{
		{"no native", Dependencies{}},
		{"no decoder", Dependencies{Native: &fakeNative{}, Neural: &fakeSynth{}, Player: &fakePlayer{}}},
		{"no player", Dependencies{Native: &fakeNative{}, Fallback: &fakeSynth{}, Decoder: &fakeDecoder{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSpeaker(Config{}, tt.deps); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewSpeaker(Config{}, Dependencies{Native: &fakeNative{}}); err != nil {
		t.Errorf("native only: unexpected error %v", err)
	}
}

func TestSpeakEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		f := newSpeakerFixture(t)

		_, err := f.speaker.Speak(context.Background(), text, DefaultOptions())
		if !errors.Is(err, ErrEmptyText) {
			t.Errorf("Speak(%q) error = %v, want ErrEmptyText", text, err)
		}
		if f.speaker.Status() != StatusError {
			t.Errorf("status = %v, want error", f.speaker.Status())
		}
		if !errors.Is(f.speaker.LastError(), ErrEmptyText) {
			t.Errorf("LastError() = %v", f.speaker.LastError())
		}
	}
}

func TestSpeakOnlyEmojiIsEmpty(t *testing.T) {
	f := newSpeakerFixture(t)

	_, err := f.speaker.Speak(context.Background(), "\U0001F44B \U0001F600", DefaultOptions())
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
}

func TestSpeakInvalidOptions(t *testing.T) {
	f := newSpeakerFixture(t)

	opts := DefaultOptions()
	opts.Speed = 3
	if _, err := f.speaker.Speak(context.Background(), "hi", opts); !errors.Is(err, ErrSpeedOutOfRange) {
		t.Errorf("error = %v, want ErrSpeedOutOfRange", err)
	}
}

func TestSpeakNative(t *testing.T) {
	f := newSpeakerFixture(t)

	u, err := f.speaker.Speak(context.Background(), "Hello \U0001F44B  world\u200b!", DefaultOptions())
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	if u.Text != "Hello world!" {
		t.Errorf("Text = %q, want normalized text", u.Text)
	}
	if u.Mode != karaoke.ModeExact {
		t.Errorf("Mode = %v, want exact", u.Mode)
	}
	if u.Engine != EngineNative || u.EngineName != "fake-native" {
		t.Errorf("engine = %v/%s", u.Engine, u.EngineName)
	}
	if u.ID == "" {
		t.Error("utterance has no id")
	}

	req, _ := f.native.last()
	if req.Text != u.Text || req.ID != u.ID {
		t.Errorf("engine request = %+v", req)
	}
	if f.speaker.Status() != StatusProcessing {
		t.Errorf("status = %v, want processing", f.speaker.Status())
	}
	if len(f.recorder.records) != 1 || f.recorder.records[0].Engine != EngineNative {
		t.Errorf("records = %+v", f.recorder.records)
	}
	if f.speaker.Current() != u {
		t.Error("Current() is not the new utterance")
	}
}

func TestSpeakNativeCompletes(t *testing.T) {
	f := newSpeakerFixture(t)

	if _, err := f.speaker.Speak(context.Background(), "hello", DefaultOptions()); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	_, pb := f.native.last()
	pb.end(nil)

	waitStatus(t, f.speaker, StatusReady)
	if f.speaker.Current() != nil {
		t.Error("Current() should be nil after completion")
	}
}

func TestSpeakNativeFails(t *testing.T) {
	f := newSpeakerFixture(t)

	if _, err := f.speaker.Speak(context.Background(), "hello", DefaultOptions()); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	boom := errors.New("synthesis failed")
	_, pb := f.native.last()
	pb.end(boom)

	waitStatus(t, f.speaker, StatusError)
	if !errors.Is(f.speaker.LastError(), boom) {
		t.Errorf("LastError() = %v", f.speaker.LastError())
	}
}

func TestSpeakStopsPrevious(t *testing.T) {
	f := newSpeakerFixture(t)

	if _, err := f.speaker.Speak(context.Background(), "first", DefaultOptions()); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	_, first := f.native.last()

	second, err := f.speaker.Speak(context.Background(), "second", DefaultOptions())
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	if !first.isStopped() {
		t.Error("previous utterance was not stopped")
	}
	if f.speaker.Current() != second {
		t.Error("Current() is not the second utterance")
	}
	if f.speaker.Status() != StatusProcessing {
		t.Errorf("status = %v, want processing", f.speaker.Status())
	}
}

func TestSpeakConcurrent(t *testing.T) {
	f := newSpeakerFixture(t)
	f.native.gate = make(chan struct{})

	var wg sync.WaitGroup
	for _, text := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.speaker.Speak(context.Background(), text, DefaultOptions()); err != nil {
				t.Errorf("Speak(%q) error = %v", text, err)
			}
		}()
	}
	// Both calls are in flight before either engine start returns.
	time.Sleep(20 * time.Millisecond)
	close(f.native.gate)
	wg.Wait()

	if err := f.speaker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	f.native.mu.Lock()
	playbacks := append([]*fakePlayback(nil), f.native.playbacks...)
	f.native.mu.Unlock()
	if len(playbacks) != 2 {
		t.Fatalf("engine started %d playbacks, want 2", len(playbacks))
	}
	for i, pb := range playbacks {
		if !pb.isStopped() {
			t.Errorf("playback %d still running after Stop", i)
		}
	}
	if f.speaker.Status() != StatusIdle {
		t.Errorf("status = %v, want idle", f.speaker.Status())
	}
}

func TestSpeakNeural(t *testing.T) {
	f := newSpeakerFixture(t)
	opts := options(EngineNeural, "voice-1")
	opts.Speed = 1.5
	opts.Volume = 0.5

	u, err := f.speaker.Speak(context.Background(), "Hello \U0001F44B world", opts)
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	if u.Mode != karaoke.ModeApproximate {
		t.Errorf("Mode = %v, want approximate", u.Mode)
	}
	if u.Text != "Hello \U0001F44B world" {
		t.Errorf("Text = %q, hosted paths keep the input text", u.Text)
	}
	if u.Engine != EngineNeural || u.EngineName != "fake-neural" {
		t.Errorf("engine = %v/%s", u.Engine, u.EngineName)
	}
	if string(u.Audio.Data) != "mp3" {
		t.Errorf("Audio = %q", u.Audio.Data)
	}
	if f.decoder.speed != 1.5 {
		t.Errorf("decode speed = %v, want 1.5", f.decoder.speed)
	}
	if f.player.volume != 0.5 {
		t.Errorf("volume = %v, want 0.5", f.player.volume)
	}
	if len(f.player.played) != 1 || string(f.player.played[0]) != "mp3" {
		t.Errorf("played = %q", f.player.played)
	}
	if f.cache.puts != 1 || u.CacheKey != CacheKey("Hello \U0001F44B world", opts) {
		t.Errorf("cache puts = %d, key = %q", f.cache.puts, u.CacheKey)
	}
	if f.neural.last.Options.Voice != "voice-1" {
		t.Errorf("voice = %q", f.neural.last.Options.Voice)
	}
}

func TestSpeakNeuralUsesCache(t *testing.T) {
	f := newSpeakerFixture(t)
	opts := options(EngineNeural, "voice-1")

	for range 2 {
		if _, err := f.speaker.Speak(context.Background(), "cached text", opts); err != nil {
			t.Fatalf("Speak() error = %v", err)
		}
	}

	if f.neural.calls != 1 {
		t.Errorf("synthesize calls = %d, want 1", f.neural.calls)
	}
	if len(f.player.played) != 2 {
		t.Errorf("played %d clips, want 2", len(f.player.played))
	}
}

func TestSpeakNeuralWithoutVoice(t *testing.T) {
	f := newSpeakerFixture(t)

	u, err := f.speaker.Speak(context.Background(), "hello  world", options(EngineNeural, ""))
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if u.Engine != EngineNative || u.Mode != karaoke.ModeExact {
		t.Errorf("engine = %v mode = %v, want native exact", u.Engine, u.Mode)
	}
	if u.Text != "hello world" {
		t.Errorf("Text = %q", u.Text)
	}
	if f.neural.calls != 0 {
		t.Error("neural engine should not be called")
	}
}

func TestSpeakFallbackUseNative(t *testing.T) {
	f := newSpeakerFixture(t)
	f.fallback.err = ErrUseNative

	u, err := f.speaker.Speak(context.Background(), "привет  мир", options(EngineFallback, ""))
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if u.Engine != EngineNative {
		t.Errorf("engine = %v, want native", u.Engine)
	}
	if u.Text != "привет мир" {
		t.Errorf("Text = %q", u.Text)
	}
}

func TestSpeakFallbackFailure(t *testing.T) {
	f := newSpeakerFixture(t)
	boom := errors.New("503")
	f.fallback.err = boom

	_, err := f.speaker.Speak(context.Background(), "hello", options(EngineFallback, ""))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if f.speaker.Status() != StatusError {
		t.Errorf("status = %v, want error", f.speaker.Status())
	}
	if f.cache.puts != 0 {
		t.Error("failed synthesis should not be cached")
	}
}

func TestSpeakDecodeFailure(t *testing.T) {
	f := newSpeakerFixture(t)
	f.decoder.err = errors.New("ffmpeg missing")

	if _, err := f.speaker.Speak(context.Background(), "hello", options(EngineFallback, "")); err == nil {
		t.Fatal("expected decode error")
	}
	if f.speaker.Status() != StatusError {
		t.Errorf("status = %v, want error", f.speaker.Status())
	}
}

func TestSpeakerControls(t *testing.T) {
	f := newSpeakerFixture(t)

	if err := f.speaker.Pause(); !errors.Is(err, ErrNoUtterance) {
		t.Errorf("Pause() error = %v, want ErrNoUtterance", err)
	}
	if err := f.speaker.Resume(); !errors.Is(err, ErrNoUtterance) {
		t.Errorf("Resume() error = %v, want ErrNoUtterance", err)
	}
	if err := f.speaker.Stop(); err != nil {
		t.Errorf("Stop() with nothing playing error = %v", err)
	}

	if _, err := f.speaker.Speak(context.Background(), "hello", DefaultOptions()); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	_, pb := f.native.last()

	_ = f.speaker.Pause()
	if !pb.paused {
		t.Error("playback not paused")
	}
	_ = f.speaker.Resume()
	if pb.paused {
		t.Error("playback not resumed")
	}

	if err := f.speaker.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !pb.isStopped() {
		t.Error("playback not stopped")
	}
	if f.speaker.Status() != StatusIdle {
		t.Errorf("status = %v, want idle", f.speaker.Status())
	}

	// A stopped utterance must not flip the status when its watcher runs.
	time.Sleep(10 * time.Millisecond)
	if f.speaker.Status() != StatusIdle {
		t.Errorf("status after stop = %v, want idle", f.speaker.Status())
	}
}

func TestSpeakerClose(t *testing.T) {
	f := newSpeakerFixture(t)
	if err := f.speaker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !f.native.closed {
		t.Error("native engine not closed")
	}
}

func TestUtteranceSave(t *testing.T) {
	f := newSpeakerFixture(t)
	dir := t.TempDir()

	native, err := f.speaker.Speak(context.Background(), "hello", DefaultOptions())
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if err := native.Save(filepath.Join(dir, "native.mp3")); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Save() error = %v, want ErrNoAudio", err)
	}

	neural, err := f.speaker.Speak(context.Background(), "hello", options(EngineNeural, "v"))
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	path := filepath.Join(dir, "out"+neural.Audio.Extension())
	if err := neural.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mp3" {
		t.Errorf("saved %q", data)
	}
}

func TestSpeakNeuralWithoutReader(t *testing.T) {
	f := newSpeakerFixture(t)

	u, err := f.speaker.Speak(context.Background(), "hello", options(EngineNeural, "v"))
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	f.player.finish()

	select {
	case <-u.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("utterance did not finish with nobody reading its events")
	}
	waitStatus(t, f.speaker, StatusReady)

	path := filepath.Join(t.TempDir(), "out.mp3")
	if err := u.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mp3" {
		t.Errorf("saved %q", data)
	}
}

func TestUtteranceSession(t *testing.T) {
	f := newSpeakerFixture(t)

	u, err := f.speaker.Speak(context.Background(), "hello world", DefaultOptions())
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	sess := u.NewSession()

	if !sess.Apply(karaoke.BoundaryEvent{Utterance: u.ID, CharIndex: 6}) {
		t.Fatal("boundary event rejected")
	}
	if got := sess.Highlight().Span.Word(); got != "world" {
		t.Errorf("word = %q, want world", got)
	}
}
