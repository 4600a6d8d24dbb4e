package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
)

const defaultConfig = `# Conversation sessions
session:
  # forget a session after this long without activity
  ttl: 1h
  # how often expired sessions are swept (0 disables the sweep)
  cleanup_interval: 10m
  # messages kept per session
  max_messages: 20
  # where sessions are saved on exit (empty disables snapshots)
  snapshot_path: ""
  # zstd level for snapshots (1-22)
  compression_level: 3

# Scheduled jobs
schedule:
  # yaml file with a top-level "jobs" list
  jobs_file: ""
  # list the latest jobs first
  reverse: false
  # reload the jobs file when it changes
  watch: false
  # how often due jobs are checked
  tick: 1s

# Dispatch queue
dispatch:
  # maximum queued jobs (0 for unbounded)
  queue_capacity: 64
  workers: 2
  # 0 disables rate limiting
  requests_per_minute: 60
  # how long to wait for room in a full queue
  submit_timeout: 5s
  # how long shutdown waits for queued jobs (0 skips the wait)
  drain_timeout: 10s

log:
  # debug, info, warn or error
  level: info
  # log file path, "default" for the cache directory, empty for stderr
  file: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the bridge config file",
	Long:    paragraph(fmt.Sprintf("\n%s the bridge config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("bridge config\nbridge config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Bridge", configFile)
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

// ensureConfigFile writes the default configuration to configFile unless
// a file is already there.
func ensureConfigFile() error {
	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	log.Info("Wrote default configuration", "path", configFile)
	return nil
}
