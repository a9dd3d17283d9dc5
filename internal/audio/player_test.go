package audio

import (
	"context"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"github.com/dgnsrekt/karaoke/internal/speech"
)

var _ speech.Player = (*Player)(nil)
var _ speech.Decoder = (*Decoder)(nil)

// pcm returns d worth of silent mono PCM at the default sample rate.
func pcm(d time.Duration) []byte {
	samples := int(d.Seconds() * SampleRate)
	return make([]byte, samples*2)
}

func newTestPlayer() *Player {
	p := NewMockPlayer(DefaultPlayerConfig())
	p.poll = time.Millisecond
	return p
}

func TestPlayerConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    PlayerConfig
		expectErr bool
	}{
		{"default", DefaultPlayerConfig(), false},
		{"48000Hz stereo", PlayerConfig{SampleRate: 48000, Channels: 2, BitDepth: 16, BufferSize: 8192}, false},
		{"invalid sample rate", PlayerConfig{SampleRate: 22050, Channels: 1, BitDepth: 16, BufferSize: 4096}, true},
		{"invalid channels", PlayerConfig{SampleRate: 44100, Channels: 3, BitDepth: 16, BufferSize: 4096}, true},
		{"invalid bit depth", PlayerConfig{SampleRate: 44100, Channels: 1, BitDepth: 24, BufferSize: 4096}, true},
		{"invalid buffer size", PlayerConfig{SampleRate: 44100, Channels: 1, BitDepth: 16}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if (err != nil) != tt.expectErr {
				t.Errorf("validateConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestPCMDuration(t *testing.T) {
	tests := []struct {
		bytes, rate, channels int
		want                  time.Duration
	}{
		{88200, 44100, 1, time.Second},
		{176400, 44100, 2, time.Second},
		{44100, 44100, 1, 500 * time.Millisecond},
		{0, 44100, 1, 0},
		{100, 0, 1, 0},
	}
	for _, tt := range tests {
		if got := pcmDuration(tt.bytes, tt.rate, tt.channels); got != tt.want {
			t.Errorf("pcmDuration(%d, %d, %d) = %v, want %v", tt.bytes, tt.rate, tt.channels, got, tt.want)
		}
	}
}

func TestClock(t *testing.T) {
	start := time.Unix(0, 0)
	var c clock
	c.reset(start)

	if got := c.elapsed(start.Add(2 * time.Second)); got != 2*time.Second {
		t.Errorf("elapsed = %v, want 2s", got)
	}

	c.pause(start.Add(3 * time.Second))
	c.pause(start.Add(4 * time.Second))
	if got := c.elapsed(start.Add(10 * time.Second)); got != 3*time.Second {
		t.Errorf("elapsed while paused = %v, want 3s", got)
	}

	c.resume(start.Add(5 * time.Second))
	c.resume(start.Add(6 * time.Second))
	if got := c.elapsed(start.Add(7 * time.Second)); got != 5*time.Second {
		t.Errorf("elapsed after resume = %v, want 5s", got)
	}
}

func TestPlayerPlayEmpty(t *testing.T) {
	if err := newTestPlayer().Play(nil); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestPlayerCompletes(t *testing.T) {
	p := newTestPlayer()

	if err := p.Play(pcm(30 * time.Millisecond)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if p.State() != StatePlaying {
		t.Errorf("state = %v, want playing", p.State())
	}
	if p.Duration() != 30*time.Millisecond {
		t.Errorf("Duration() = %v, want 30ms", p.Duration())
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not complete")
	}
	if p.State() != StateStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
	if p.Position() != 0 {
		t.Errorf("Position() after end = %v, want 0", p.Position())
	}
	if p.Duration() != 30*time.Millisecond {
		t.Error("Duration() should survive the end of playback")
	}
}

func TestPlayerPauseResume(t *testing.T) {
	p := newTestPlayer()

	if err := p.Resume(); err == nil {
		t.Error("Resume() while stopped should fail")
	}
	if err := p.Play(pcm(time.Second)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	defer p.Stop()

	time.Sleep(20 * time.Millisecond)
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := p.Pause(); err == nil {
		t.Error("second Pause() should fail")
	}

	pos := p.Position()
	if pos <= 0 {
		t.Errorf("Position() = %v, want > 0", pos)
	}
	time.Sleep(30 * time.Millisecond)
	if got := p.Position(); got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}

	select {
	case <-p.Done():
		t.Fatal("paused playback completed")
	default:
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if p.State() != StatePlaying {
		t.Errorf("state = %v, want playing", p.State())
	}
}

func TestPlayerStop(t *testing.T) {
	p := newTestPlayer()

	if err := p.Play(pcm(time.Second)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	done := p.Done()

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	select {
	case <-done:
	default:
		t.Error("Done not closed by Stop")
	}
}

func TestPlayerReplace(t *testing.T) {
	p := newTestPlayer()

	if err := p.Play(pcm(time.Second)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	first := p.Done()

	if err := p.Play(pcm(time.Second)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	defer p.Stop()

	select {
	case <-first:
	default:
		t.Error("first playback not ended by the second Play")
	}
	select {
	case <-p.Done():
		t.Error("second playback ended early")
	default:
	}
}

func TestPlayerVolume(t *testing.T) {
	p := newTestPlayer()

	if p.Volume() != 1.0 {
		t.Errorf("default volume = %v, want 1.0", p.Volume())
	}
	if err := p.SetVolume(0.25); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if p.Volume() != 0.25 {
		t.Errorf("volume = %v, want 0.25", p.Volume())
	}
	for _, v := range []float64{-0.1, 1.1} {
		if err := p.SetVolume(v); err == nil {
			t.Errorf("SetVolume(%v) should fail", v)
		}
	}
}

func TestPlayerClose(t *testing.T) {
	p := newTestPlayer()
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Play(pcm(time.Millisecond)); err == nil {
		t.Error("Play() after Close should fail")
	}
	if p.State() != StateClosed {
		t.Errorf("state = %v, want closed", p.State())
	}
}

func TestFFmpegArgs(t *testing.T) {
	base := []string{"-hide_banner", "-loglevel", "error", "-i", "in.mp3", "-f", "s16le", "-ar", "44100", "-ac", "1"}

	tests := []struct {
		speed float64
		extra []string
	}{
		{1.0, nil},
		{0, nil},
		{1.5, []string{"-filter:a", "atempo=1.50"}},
		{3.0, []string{"-filter:a", "atempo=2.00"}},
		{0.1, []string{"-filter:a", "atempo=0.50"}},
	}

	for _, tt := range tests {
		want := append(append(append([]string(nil), base...), tt.extra...), "-")
		if got := ffmpegArgs("in.mp3", tt.speed); !reflect.DeepEqual(got, want) {
			t.Errorf("ffmpegArgs(%v) = %q, want %q", tt.speed, got, want)
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	d := NewDecoder(DecoderConfig{})
	if _, err := d.Decode(context.Background(), &speech.Audio{}, 1); err == nil {
		t.Error("expected error for empty audio")
	}
	if _, err := d.Decode(context.Background(), nil, 1); err == nil {
		t.Error("expected error for nil audio")
	}
}

func TestDecodeMissingFFmpeg(t *testing.T) {
	d := NewDecoder(DecoderConfig{FFmpegPath: "karaoke-no-such-ffmpeg", TempDir: t.TempDir()})
	if err := d.Validate(); err == nil {
		t.Error("Validate() should fail")
	}
	if _, err := d.Decode(context.Background(), &speech.Audio{Data: []byte("x")}, 1); err == nil {
		t.Error("Decode() should fail")
	}
}

func TestDecodeWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	wav := silentWAV(SampleRate, 4410)
	d := NewDecoder(DecoderConfig{TempDir: t.TempDir()})

	out, err := d.Decode(context.Background(), &speech.Audio{Data: wav, MIME: "audio/wav"}, 1)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != 4410*2 {
		t.Errorf("decoded %d bytes, want %d", len(out), 4410*2)
	}
}

// silentWAV builds a mono 16-bit WAV file with n silent samples.
func silentWAV(rate, n int) []byte {
	le16 := func(v int) []byte { return []byte{byte(v), byte(v >> 8)} }
	le32 := func(v int) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

	data := n * 2
	var b []byte
	b = append(b, "RIFF"...)
	b = append(b, le32(36+data)...)
	b = append(b, "WAVEfmt "...)
	b = append(b, le32(16)...)
	b = append(b, le16(1)...) // PCM
	b = append(b, le16(1)...) // mono
	b = append(b, le32(rate)...)
	b = append(b, le32(rate*2)...)
	b = append(b, le16(2)...)
	b = append(b, le16(16)...)
	b = append(b, "data"...)
	b = append(b, le32(data)...)
	return append(b, make([]byte, data)...)
}

func TestLastLine(t *testing.T) {
	if got := lastLine([]byte("a\nb\nerror here\n")); got != "error here" {
		t.Errorf("lastLine() = %q", got)
	}
	if got := lastLine(nil); got != "" {
		t.Errorf("lastLine(nil) = %q", got)
	}
}
