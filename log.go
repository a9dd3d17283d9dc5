package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "karaoke").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "karaoke.log"), nil
}

// setupLog sends the logger to a file, since the TUI owns the terminal. The
// level comes from log.level in the config; KARAOKE_DEBUG forces debug.
func setupLog() (func() error, error) {
	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	log.SetLevel(log.InfoLevel)
	return f.Close, nil
}

// setLogLevel applies the configured level once the config is loaded.
func setLogLevel(level string) {
	if os.Getenv("KARAOKE_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
		return
	}
	if level == "" {
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("Unknown log level", "level", level)
		return
	}
	log.SetLevel(lvl)
}
