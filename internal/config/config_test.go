package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultSession: "work",
		Server:         ServerConfig{MessageURL: "wss://example.test/messages"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Server.MessageURL != "wss://example.test/messages" {
		t.Errorf("MessageURL = %q", loaded.Server.MessageURL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	if got := cfg.Server.ReconnectMin(); got != DefaultReconnectMin {
		t.Errorf("ReconnectMin = %v, want %v", got, DefaultReconnectMin)
	}
	if got := cfg.Server.ReconnectMax(); got != DefaultReconnectMax {
		t.Errorf("ReconnectMax = %v, want %v", got, DefaultReconnectMax)
	}
	if got := cfg.Stream.MinInterval(); got != DefaultStreamGateMin {
		t.Errorf("MinInterval = %v, want %v", got, DefaultStreamGateMin)
	}

	cfg.Stream.MinIntervalSeconds = 3
	if got := cfg.Stream.MinInterval(); got != 3*time.Second {
		t.Errorf("MinInterval = %v, want 3s", got)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
