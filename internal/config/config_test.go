package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Transport.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("Expected default nats_url, got '%s'", cfg.Transport.NATSURL)
	}

	if cfg.Transport.PingInterval != 30*time.Second {
		t.Errorf("Expected ping interval 30s, got %s", cfg.Transport.PingInterval)
	}

	if cfg.Broadcast.BatchingDelay != time.Second {
		t.Errorf("Expected batching delay 1s, got %s", cfg.Broadcast.BatchingDelay)
	}

	if cfg.Broadcast.TrackerCapacity != 100 {
		t.Errorf("Expected tracker capacity 100, got %d", cfg.Broadcast.TrackerCapacity)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got '%s'", cfg.Logging.Level)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected log format 'text', got '%s'", cfg.Logging.Format)
	}

	if cfg.Version != "1.0" {
		t.Errorf("Expected version '1.0', got '%s'", cfg.Version)
	}

	if cfg.Profile != "default" {
		t.Errorf("Expected profile 'default', got '%s'", cfg.Profile)
	}

	if cfg.Features == nil {
		t.Error("Expected features map to be initialized")
	}
}

func TestNewManager(t *testing.T) {
	manager := NewManager()

	if manager == nil {
		t.Fatal("Expected manager to be created")
	}

	cfg := manager.Get()
	if cfg == nil {
		t.Fatal("Expected config to be available")
	}

	if cfg.Profile != "default" {
		t.Errorf("Expected default profile, got '%s'", cfg.Profile)
	}
}

func TestManagerLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.toml")

	configContent := `
version = "1.0"
profile = "test"

[transport]
nats_url = "nats://agents.internal:4222"
ping_interval = "15s"
inactivity_timeout = "45s"
send_timeout = "10s"

[broadcast]
batching_delay = "1s"
tracker_capacity = 250
fragment_rate = 50.0
fragment_burst = 100

[logging]
level = "debug"
format = "text"
output = "stderr"

[features]
test_feature = true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	manager := NewManager()
	if err := manager.Load(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg := manager.Get()
	if cfg.Profile != "test" {
		t.Errorf("Expected profile 'test', got '%s'", cfg.Profile)
	}

	if cfg.Transport.NATSURL != "nats://agents.internal:4222" {
		t.Errorf("Expected nats_url override, got '%s'", cfg.Transport.NATSURL)
	}

	if cfg.Broadcast.TrackerCapacity != 250 {
		t.Errorf("Expected tracker capacity 250, got %d", cfg.Broadcast.TrackerCapacity)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.Logging.Level)
	}

	if !cfg.Features["test_feature"] {
		t.Error("Expected test_feature to be true")
	}
}

func TestManagerUpdate(t *testing.T) {
	manager := NewManager()

	err := manager.Update(func(cfg *Config) {
		cfg.Broadcast.TrackerCapacity = 42
		cfg.Logging.Level = "error"
	})

	if err != nil {
		t.Fatalf("Unexpected error updating config: %v", err)
	}

	cfg := manager.Get()
	if cfg.Broadcast.TrackerCapacity != 42 {
		t.Errorf("Expected tracker capacity 42, got %d", cfg.Broadcast.TrackerCapacity)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("Expected log level 'error', got '%s'", cfg.Logging.Level)
	}
}

func TestManagerInvalidConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid_config.toml")

	invalidContent := `
version = "1.0"
profile = "test"

[transport]
nats_url = "nats://127.0.0.1:4222"
ping_interval = "0s"
inactivity_timeout = "0s"
send_timeout = "0s"

[logging]
level = "not_a_level"
format = "not_a_format"
output = "stderr"
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	manager := NewManager()
	if err := manager.Load(configPath); err == nil {
		t.Error("Expected error loading invalid config")
	}
}

func TestConfigSerialization(t *testing.T) {
	original := DefaultConfig()
	original.Broadcast.TrackerCapacity = 20000
	original.SetFeature("test_feature", true)

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(original); err != nil {
		t.Fatalf("Error marshaling config: %v", err)
	}

	var restored Config
	if _, err := toml.Decode(buf.String(), &restored); err != nil {
		t.Fatalf("Error unmarshaling config: %v", err)
	}

	if original.Broadcast.TrackerCapacity != restored.Broadcast.TrackerCapacity {
		t.Errorf("Tracker capacity not preserved: expected %d, got %d",
			original.Broadcast.TrackerCapacity, restored.Broadcast.TrackerCapacity)
	}

	if !restored.Features["test_feature"] {
		t.Error("Feature flag not preserved through round-trip")
	}
}
