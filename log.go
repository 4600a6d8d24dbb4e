package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/term"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "bridge").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bridge.log"), nil
}

// setupLog configures the default logger. Output goes to stderr unless a
// log file is configured; anything but a terminal gets logfmt lines.
func setupLog(cfg config.LogConfig) (func() error, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			log.SetFormatter(log.LogfmtFormatter)
		}
		return func() error { return nil }, nil
	}

	logFile := cfg.File
	if logFile == "default" {
		if logFile, err = getLogFilePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	log.SetOutput(f)
	log.SetFormatter(log.LogfmtFormatter)
	return f.Close, nil
}
