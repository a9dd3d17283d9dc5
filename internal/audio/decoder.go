package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/dgnsrekt/karaoke/internal/speech"
)

const (
	// SampleRate is the PCM sample rate Decoder produces.
	SampleRate = 44100

	// Channels is the PCM channel count Decoder produces.
	Channels = 1

	defaultDecodeTimeout = 15 * time.Second

	// maxPCMSize caps decoded output, about six minutes of mono audio.
	maxPCMSize = 32 * 1024 * 1024
)

// Decoder converts encoded audio (mp3, wav, ogg) to 16-bit mono PCM with
// ffmpeg. It implements speech.Decoder.
type Decoder struct {
	ffmpeg  string
	tempDir string
	timeout time.Duration
}

// DecoderConfig holds configuration for the decoder.
type DecoderConfig struct {
	// FFmpegPath defaults to "ffmpeg" from PATH.
	FFmpegPath string

	// TempDir for intermediate files, defaults to the system temp dir.
	TempDir string

	// Timeout for one conversion, defaults to 15s.
	Timeout time.Duration
}

// NewDecoder creates a new ffmpeg decoder.
func NewDecoder(config DecoderConfig) *Decoder {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultDecodeTimeout
	}
	return &Decoder{
		ffmpeg:  config.FFmpegPath,
		tempDir: config.TempDir,
		timeout: config.Timeout,
	}
}

// Validate checks that ffmpeg can be found.
func (d *Decoder) Validate() error {
	if _, err := exec.LookPath(d.ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w\n\nInstall ffmpeg for audio conversion", err)
	}
	return nil
}

// Decode converts audio to PCM, applying speed with the atempo filter.
func (d *Decoder) Decode(ctx context.Context, audio *speech.Audio, speed float64) ([]byte, error) {
	if audio == nil || len(audio.Data) == 0 {
		return nil, errors.New("audio data is empty")
	}

	in, err := os.CreateTemp(d.tempDir, "karaoke-*"+audio.Extension())
	if err != nil {
		return nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	defer os.Remove(in.Name()) //nolint:errcheck

	if _, err := in.Write(audio.Data); err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffmpeg, ffmpegArgs(in.Name(), speed)...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg conversion timeout: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, lastLine(stderr.Bytes()))
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no PCM output, stderr: %s", lastLine(stderr.Bytes()))
	}
	if len(pcm) > maxPCMSize {
		return nil, fmt.Errorf("ffmpeg PCM output too large: %d bytes (max %d)", len(pcm), maxPCMSize)
	}
	return pcm, nil
}

func ffmpegArgs(input string, speed float64) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
	}
	if speed != 0 && speed != 1.0 {
		// atempo accepts 0.5 to 2.0.
		speed = max(speech.MinSpeed, min(speech.MaxSpeed, speed))
		args = append(args, "-filter:a", "atempo="+strconv.FormatFloat(speed, 'f', 2, 64))
	}
	return append(args, "-")
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
