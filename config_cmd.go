package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech engine: native, neural (ElevenLabs) or fallback (Bark)
engine: "native"
# language of the text, as a BCP 47 tag
language: "ru-RU"
# voice name or ID; empty picks the engine's default
voice: ""
# speaking rate, 0.5 to 2.0
speed: 1.0
pitch: 1.0
volume: 1.0
# how often playback reports progress
tick: "250ms"
# reduce the text from markdown before speaking it
markdown: false
# mouse support
mouse: false

# how the pager follows the highlighted word
scroll:
  # top, center or bottom
  align: "center"
  # rows the highlight may come to the edge before scrolling
  margin: 1

# system voices
native:
  # auto, speechd or mock
  engine: "auto"
  # socket: "/run/user/1000/speech-dispatcher/speechd.sock"
  # words per minute for timing when there is no sound
  wpm: 160

# ElevenLabs, needs ELEVENLABS_API_KEY
neural:
  model_id: "eleven_multilingual_v2"
  stability: 0.5
  similarity_boost: 0.75
  style: 0.0
  speaker_boost: true

# Bark, needs HUGGINGFACE_API_KEY or LOCAL_BARK_URL
fallback:
  temperature: 0.3
  top_k: 20
  top_p: 0.8
  waveform_temp: 0.4

# synthesized audio cache
cache:
  enabled: true
  # dir: "~/.cache/karaoke/audio"
  memory_mb: 64
  disk_mb: 512
  # zstd level, 0 to 22
  compression: 3
  ttl: "168h"

history:
  enabled: true
  # file: "~/.local/share/karaoke/history.json"

log:
  # debug, info, warn or error
  level: "info"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the karaoke config file",
	Long:    paragraph(fmt.Sprintf("\n%s the karaoke config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("karaoke config\nkaraoke config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// A broken config must still be editable.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Karaoke", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
