package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// SetDefaults registers the default configuration with v.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("session.ttl", defaults.Session.TTL.String())
	v.SetDefault("session.cleanup_interval", defaults.Session.CleanupInterval.String())
	v.SetDefault("session.max_messages", defaults.Session.MaxMessages)
	v.SetDefault("session.snapshot_path", defaults.Session.SnapshotPath)
	v.SetDefault("session.compression_level", defaults.Session.CompressionLevel)

	v.SetDefault("schedule.jobs_file", defaults.Schedule.JobsFile)
	v.SetDefault("schedule.reverse", defaults.Schedule.Reverse)
	v.SetDefault("schedule.watch", defaults.Schedule.Watch)
	v.SetDefault("schedule.tick", defaults.Schedule.Tick.String())

	v.SetDefault("dispatch.queue_capacity", defaults.Dispatch.QueueCapacity)
	v.SetDefault("dispatch.workers", defaults.Dispatch.Workers)
	v.SetDefault("dispatch.requests_per_minute", defaults.Dispatch.RequestsPerMinute)
	v.SetDefault("dispatch.submit_timeout", defaults.Dispatch.SubmitTimeout.String())
	v.SetDefault("dispatch.drain_timeout", defaults.Dispatch.DrainTimeout.String())

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)
}

// LoadConfigFromViper builds a Config from v, then applies BRIDGE_* environment
// overrides and validates the result.
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("session.ttl") {
		cfg.Session.TTL = v.GetDuration("session.ttl")
	}
	if v.IsSet("session.cleanup_interval") {
		cfg.Session.CleanupInterval = v.GetDuration("session.cleanup_interval")
	}
	if v.IsSet("session.max_messages") {
		cfg.Session.MaxMessages = v.GetInt("session.max_messages")
	}
	if v.IsSet("session.snapshot_path") {
		cfg.Session.SnapshotPath = v.GetString("session.snapshot_path")
	}
	if v.IsSet("session.compression_level") {
		cfg.Session.CompressionLevel = v.GetInt("session.compression_level")
	}

	if v.IsSet("schedule.jobs_file") {
		cfg.Schedule.JobsFile = v.GetString("schedule.jobs_file")
	}
	if v.IsSet("schedule.reverse") {
		cfg.Schedule.Reverse = v.GetBool("schedule.reverse")
	}
	if v.IsSet("schedule.watch") {
		cfg.Schedule.Watch = v.GetBool("schedule.watch")
	}
	if v.IsSet("schedule.tick") {
		cfg.Schedule.Tick = v.GetDuration("schedule.tick")
	}

	if v.IsSet("dispatch.queue_capacity") {
		cfg.Dispatch.QueueCapacity = v.GetInt("dispatch.queue_capacity")
	}
	if v.IsSet("dispatch.workers") {
		cfg.Dispatch.Workers = v.GetInt("dispatch.workers")
	}
	if v.IsSet("dispatch.requests_per_minute") {
		cfg.Dispatch.RequestsPerMinute = v.GetInt("dispatch.requests_per_minute")
	}
	if v.IsSet("dispatch.submit_timeout") {
		cfg.Dispatch.SubmitTimeout = v.GetDuration("dispatch.submit_timeout")
	}
	if v.IsSet("dispatch.drain_timeout") {
		cfg.Dispatch.DrainTimeout = v.GetDuration("dispatch.drain_timeout")
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}

	// Typed environment overrides win over the config file.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
