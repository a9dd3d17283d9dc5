// Package main provides the entry point for the karaoke CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/karaoke/internal/speech"
	"github.com/dgnsrekt/karaoke/internal/textsrc"
	"github.com/dgnsrekt/karaoke/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	run        settings

	rootCmd = &cobra.Command{
		Use:   "karaoke [TEXT|FILE|URL|-]",
		Short: "Speak text aloud and follow along word by word",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text aloud in the terminal and %s as it is read.", keyword("highlight every word")),
		),
		Example: paragraph("karaoke \"Привет, мир\"\nkaraoke notes.md\nkaraoke --engine neural --voice Rachel story.txt\ncat draft.txt | karaoke --plain"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}
	setLogLevel(viper.GetString("log.level"))
	s, err := loadSettings()
	if err != nil {
		return err
	}
	run = s
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	if arg == "" {
		yes, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if !yes {
			return cmd.Help()
		}
		arg = "-"
	}

	src, err := textsrc.Resolve(ctx, arg, textsrc.Options{Markdown: run.Markdown})
	if err != nil {
		return err
	}
	log.Debug("Resolved text", "kind", src.Kind, "location", src.Location, "markdown", src.Markdown)

	return speakSource(ctx, run, src)
}

// speakSource speaks src with s, to a file, as plain output or in the pager.
func speakSource(ctx context.Context, s settings, src *textsrc.Source) error {
	svc, err := newServices(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error("Unable to shut down cleanly", "error", err)
		}
	}()

	switch {
	case s.Output != "":
		return saveAudio(ctx, svc.speaker, src.Text, s.Options, s.Output)
	case s.Plain || !term.IsTerminal(int(os.Stdout.Fd())):
		return ui.RunPlain(ctx, os.Stdout, svc.speaker, src.Text, s.Options)
	default:
		return runTUI(ctx, s, svc.speaker, src)
	}
}

// saveAudio speaks text and writes the synthesized audio to path once
// playback has finished.
func saveAudio(ctx context.Context, s *speech.Speaker, text string, opts speech.Options, path string) error {
	if opts.Engine == speech.EngineNative {
		return fmt.Errorf("--output needs a hosted engine: %w", speech.ErrNoAudio)
	}
	u, err := s.Speak(ctx, text, opts)
	if err != nil {
		return err
	}
	select {
	case <-u.Done():
	case <-ctx.Done():
		_ = s.Stop()
		<-u.Done()
		return ctx.Err()
	}
	if err := u.Err(); err != nil && !errors.Is(err, speech.ErrStopped) {
		return err
	}
	if err := u.Save(path); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, faint("Wrote "+u.EngineName+" audio to "+path))
	return nil
}

func runTUI(ctx context.Context, set settings, s *speech.Speaker, src *textsrc.Source) error {
	cfg, err := set.uiConfig()
	if err != nil {
		return err
	}
	cfg.Source = src

	if _, err := ui.NewProgram(ctx, cfg, s).Run(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringP("engine", "e", "native", "speech engine: native, neural or fallback")
	rootCmd.PersistentFlags().StringP("lang", "l", "ru-RU", "language of the text (BCP 47)")
	rootCmd.Flags().StringP("voice", "v", "", "voice name or ID")
	rootCmd.Flags().Float64P("speed", "s", 1, "speaking rate, 0.5 to 2.0")
	rootCmd.Flags().BoolP("markdown", "M", false, "treat the text as markdown")
	rootCmd.Flags().StringP("output", "o", "", "save synthesized audio to a file instead of showing the pager")
	rootCmd.Flags().BoolP("plain", "p", false, "print words as they are spoken instead of starting the pager")
	rootCmd.Flags().BoolP("mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("lang"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("markdown", rootCmd.Flags().Lookup("markdown"))
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("plain", rootCmd.Flags().Lookup("plain"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	setDefaults()

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, historyCmd, cacheCmd)
}

func setDefaults() {
	viper.SetDefault("engine", string(speech.EngineNative))
	viper.SetDefault("language", speech.DefaultLanguage)
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("pitch", 1.0)
	viper.SetDefault("volume", 1.0)
	viper.SetDefault("tick", "250ms")

	viper.SetDefault("scroll.align", "center")
	viper.SetDefault("scroll.margin", ui.DefaultScrollMargin)

	viper.SetDefault("native.engine", nativeAuto)
	viper.SetDefault("native.wpm", 160)

	viper.SetDefault("neural.model_id", "eleven_multilingual_v2")
	viper.SetDefault("neural.stability", 0.5)
	viper.SetDefault("neural.similarity_boost", 0.75)
	viper.SetDefault("neural.style", 0.0)
	viper.SetDefault("neural.speaker_boost", true)

	viper.SetDefault("fallback.temperature", 0.3)
	viper.SetDefault("fallback.top_k", 20)
	viper.SetDefault("fallback.top_p", 0.8)
	viper.SetDefault("fallback.waveform_temp", 0.4)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.memory_mb", 64)
	viper.SetDefault("cache.disk_mb", 512)
	viper.SetDefault("cache.compression", 3)
	viper.SetDefault("cache.ttl", "168h")

	viper.SetDefault("history.enabled", true)
	viper.SetDefault("log.level", "info")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "karaoke")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "karaoke")}, dirs...)
	}

	if c := os.Getenv("KARAOKE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("karaoke")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("karaoke")
	// KARAOKE_SCROLL_ALIGN sets scroll.align.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "karaoke.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
