// Package main provides the entry point for the bridge daemon.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	v          = viper.New()

	rootCmd = &cobra.Command{
		Use:   "bridge",
		Short: "Keep chat sessions and deliver scheduled messages",
		Long: paragraph(
			fmt.Sprintf("\nKeep chat %s and deliver %s to them.", keyword("sessions"), keyword("scheduled messages")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
	}
)

// loadConfig reads the effective configuration: defaults, then the config
// file, then BRIDGE_* environment variables, then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if configFile != "" && cmd.Flags().Changed("config") {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	cfg, err := config.LoadConfigFromViper(v)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, fmt.Sprintf("config file (default %s)", v.ConfigFileUsed()))
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	runCmd.Flags().String("jobs", "", "jobs file to schedule")
	runCmd.Flags().Int("workers", 0, "number of dispatch workers")
	runCmd.Flags().Bool("watch", false, "reload the jobs file when it changes")
	jobsCmd.Flags().String("jobs", "", "jobs file to list")
	jobsCmd.Flags().Bool("reverse", false, "list the latest jobs first")

	// Config bindings
	_ = v.BindPFlag("schedule.jobs_file", runCmd.Flags().Lookup("jobs"))
	_ = v.BindPFlag("dispatch.workers", runCmd.Flags().Lookup("workers"))
	_ = v.BindPFlag("schedule.watch", runCmd.Flags().Lookup("watch"))

	rootCmd.AddCommand(runCmd, jobsCmd, sessionsCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "bridge")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "bridge")}, dirs...)
	}

	if c := os.Getenv("BRIDGE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, d := range dirs {
		v.AddConfigPath(d)
	}

	config.SetDefaults(v)
	v.SetConfigName("bridge")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("bridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		configFile = used
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "bridge.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
