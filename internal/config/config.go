// Package config holds the runtime configuration for the bridge: session
// expiry, job scheduling, dispatch queue sizing and logging.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains all bridge configuration options.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`
}

// SessionConfig controls the conversation cache.
type SessionConfig struct {
	// Sliding lifetime of an idle conversation.
	TTL time.Duration `yaml:"ttl" env:"BRIDGE_SESSION_TTL"`

	// How often expired conversations are swept; zero disables the sweep
	// and leaves eviction to reads.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"BRIDGE_SESSION_CLEANUP_INTERVAL"`

	// Messages kept per conversation, not counting the system prompt.
	MaxMessages int `yaml:"max_messages" env:"BRIDGE_SESSION_MAX_MESSAGES"`

	// Where conversations are saved on shutdown; empty disables snapshots.
	SnapshotPath     string `yaml:"snapshot_path" env:"BRIDGE_SESSION_SNAPSHOT_PATH"`
	CompressionLevel int    `yaml:"compression_level" env:"BRIDGE_SESSION_COMPRESSION_LEVEL"`
}

// ScheduleConfig controls scheduled jobs.
type ScheduleConfig struct {
	JobsFile string        `yaml:"jobs_file" env:"BRIDGE_SCHEDULE_JOBS_FILE"`
	Reverse  bool          `yaml:"reverse" env:"BRIDGE_SCHEDULE_REVERSE"`
	Watch    bool          `yaml:"watch" env:"BRIDGE_SCHEDULE_WATCH"`
	Tick     time.Duration `yaml:"tick" env:"BRIDGE_SCHEDULE_TICK"`
}

// DispatchConfig controls the job queue and its workers.
type DispatchConfig struct {
	// Zero means unbounded.
	QueueCapacity int `yaml:"queue_capacity" env:"BRIDGE_DISPATCH_QUEUE_CAPACITY"`
	Workers       int `yaml:"workers" env:"BRIDGE_DISPATCH_WORKERS"`

	// Zero disables rate limiting.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"BRIDGE_DISPATCH_REQUESTS_PER_MINUTE"`

	// How long Submit waits for room; zero fails immediately when full.
	SubmitTimeout time.Duration `yaml:"submit_timeout" env:"BRIDGE_DISPATCH_SUBMIT_TIMEOUT"`

	// How long shutdown waits for queued jobs to be handled; zero skips it.
	DrainTimeout time.Duration `yaml:"drain_timeout" env:"BRIDGE_DISPATCH_DRAIN_TIMEOUT"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" env:"BRIDGE_LOG_LEVEL"`
	File  string `yaml:"file" env:"BRIDGE_LOG_FILE"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:              time.Hour,
			CleanupInterval:  10 * time.Minute,
			MaxMessages:      20,
			CompressionLevel: 3,
		},
		Schedule: ScheduleConfig{
			Tick: time.Second,
		},
		Dispatch: DispatchConfig{
			QueueCapacity:     64,
			Workers:           2,
			RequestsPerMinute: 60,
			SubmitTimeout:     5 * time.Second,
			DrainTimeout:      10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks if the configuration is valid. Paths are expanded in place.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session ttl must be positive, got %s", ErrInvalidConfig, c.Session.TTL)
	}
	if c.Session.CleanupInterval < 0 {
		return fmt.Errorf("%w: session cleanup interval cannot be negative, got %s", ErrInvalidConfig, c.Session.CleanupInterval)
	}
	if c.Session.MaxMessages < 1 {
		return fmt.Errorf("%w: session max messages must be at least 1, got %d", ErrInvalidConfig, c.Session.MaxMessages)
	}
	if c.Session.CompressionLevel < 1 || c.Session.CompressionLevel > 22 {
		return fmt.Errorf("%w: compression level must be between 1 and 22, got %d", ErrInvalidConfig, c.Session.CompressionLevel)
	}

	if c.Schedule.Tick <= 0 {
		return fmt.Errorf("%w: schedule tick must be positive, got %s", ErrInvalidConfig, c.Schedule.Tick)
	}

	if c.Dispatch.QueueCapacity < 0 {
		return fmt.Errorf("%w: queue capacity cannot be negative, got %d", ErrInvalidConfig, c.Dispatch.QueueCapacity)
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Dispatch.Workers)
	}
	if c.Dispatch.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests per minute cannot be negative, got %d", ErrInvalidConfig, c.Dispatch.RequestsPerMinute)
	}
	if c.Dispatch.SubmitTimeout < 0 {
		return fmt.Errorf("%w: submit timeout cannot be negative, got %s", ErrInvalidConfig, c.Dispatch.SubmitTimeout)
	}
	if c.Dispatch.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain timeout cannot be negative, got %s", ErrInvalidConfig, c.Dispatch.DrainTimeout)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	levelValid := false
	for _, l := range validLevels {
		if strings.EqualFold(c.Log.Level, l) {
			levelValid = true
			c.Log.Level = l
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: invalid log level '%s': must be one of %v", ErrInvalidConfig, c.Log.Level, validLevels)
	}

	var err error
	if c.Session.SnapshotPath, err = ExpandPath(c.Session.SnapshotPath); err != nil {
		return fmt.Errorf("%w: snapshot path: %v", ErrInvalidConfig, err)
	}
	if c.Schedule.JobsFile, err = ExpandPath(c.Schedule.JobsFile); err != nil {
		return fmt.Errorf("%w: jobs file: %v", ErrInvalidConfig, err)
	}
	if c.Log.File, err = ExpandPath(c.Log.File); err != nil {
		return fmt.Errorf("%w: log file: %v", ErrInvalidConfig, err)
	}

	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return homedir.Expand(path)
}
