package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
)

func withConfigFile(t *testing.T, path string) {
	t.Helper()
	old := configFile
	configFile = path
	t.Cleanup(func() { configFile = old })
}

func TestEnsureConfigFileWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bridge.yml")
	withConfigFile(t, path)

	if err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile failed: %v", err)
	}

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	cfg, err := config.LoadConfigFromViper(v)
	if err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg != config.DefaultConfig() {
		t.Errorf("written config differs from defaults:\n got %+v\nwant %+v", cfg, config.DefaultConfig())
	}
}

func TestEnsureConfigFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	withConfigFile(t, path)

	custom := []byte("session:\n  ttl: 5m\n")
	if err := os.WriteFile(path, custom, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(custom) {
		t.Errorf("existing config was overwritten: %q", got)
	}
}

func TestEnsureConfigFileRejectsOtherFormats(t *testing.T) {
	withConfigFile(t, filepath.Join(t.TempDir(), "bridge.json"))

	if err := ensureConfigFile(); err == nil {
		t.Error("expected an error for a .json config file")
	}
}
