// Package config provides the TOML-plus-environment configuration system
// for the controller and agent daemons.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete daemon configuration.
type Config struct {
	// Transport configuration
	Transport TransportConfig `toml:"transport"`

	// Broadcast service tuning
	Broadcast BroadcastConfig `toml:"broadcast"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Feature flags
	Features map[string]bool `toml:"features"`

	// Metadata
	Version string `toml:"version"`
	Profile string `toml:"profile"`
}

// TransportConfig contains NATS connection and TLS settings.
type TransportConfig struct {
	ListenAddress string `toml:"listen_address" env:"CONVERGENT_LISTEN_ADDRESS"`
	NATSURL       string `toml:"nats_url" env:"CONVERGENT_NATS_URL"`

	TLS TLSConfig `toml:"tls"`

	PingInterval      time.Duration `toml:"ping_interval"`
	InactivityTimeout time.Duration `toml:"inactivity_timeout"`
	SendTimeout       time.Duration `toml:"send_timeout"`
}

// TLSConfig contains mutual-TLS material paths.
type TLSConfig struct {
	CertFile   string `toml:"cert_file" env:"CONVERGENT_TLS_CERT_FILE"`
	KeyFile    string `toml:"key_file" env:"CONVERGENT_TLS_KEY_FILE"`
	CAFile     string `toml:"ca_file" env:"CONVERGENT_TLS_CA_FILE"`
	SkipVerify bool   `toml:"skip_verify" env:"CONVERGENT_TLS_SKIP_VERIFY"`
}

// BroadcastConfig contains controller broadcast-service tuning.
type BroadcastConfig struct {
	BatchingDelay   time.Duration `toml:"batching_delay"`
	TrackerCapacity int           `toml:"tracker_capacity"`
	FragmentRate    float64       `toml:"fragment_rate"`
	FragmentBurst   int           `toml:"fragment_burst"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level       string `toml:"level" env:"CONVERGENT_LOG_LEVEL"`
	Format      string `toml:"format"`
	Output      string `toml:"output"`
	EnableColor bool   `toml:"enable_color"`
}

// Manager manages configuration loading, validation, and hot-reloading.
type Manager struct {
	config      *Config
	configPath  string
	mu          sync.RWMutex
	changeHooks []func(*Config)
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config:      DefaultConfig(),
		changeHooks: make([]func(*Config), 0),
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			ListenAddress:     "0.0.0.0:4222",
			NATSURL:           "nats://127.0.0.1:4222",
			PingInterval:      30 * time.Second,
			InactivityTimeout: 90 * time.Second,
			SendTimeout:       10 * time.Second,
		},
		Broadcast: BroadcastConfig{
			BatchingDelay:   1 * time.Second,
			TrackerCapacity: 100,
			FragmentRate:    50,
			FragmentBurst:   100,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			Output:      "stderr",
			EnableColor: true,
		},
		Features: make(map[string]bool),
		Version:  "1.0",
		Profile:  "default",
	}
}

// Load loads configuration from a TOML file.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expandedPath, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expanding config path: %w", err)
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(expandedPath, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	m.config = cfg
	m.configPath = expandedPath

	m.notifyChangeHooks(cfg)

	return nil
}

// LoadProfile loads a named configuration profile.
func (m *Manager) LoadProfile(profileName string) error {
	profilePath := filepath.Join(getProfilesDir(), profileName+".toml")
	if err := m.Load(profilePath); err != nil {
		return fmt.Errorf("loading profile %s: %w", profileName, err)
	}

	m.mu.Lock()
	m.config.Profile = profileName
	m.mu.Unlock()

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	return &configCopy
}

// Update updates the configuration and notifies hooks.
func (m *Manager) Update(updateFunc func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := *m.config
	updateFunc(&configCopy)

	if err := Validate(&configCopy); err != nil {
		return fmt.Errorf("validating updated configuration: %w", err)
	}

	m.config = &configCopy

	m.notifyChangeHooks(&configCopy)

	return nil
}

// OnChange registers a callback for configuration changes.
func (m *Manager) OnChange(hook func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeHooks = append(m.changeHooks, hook)
}

// notifyChangeHooks calls all registered change hooks.
func (m *Manager) notifyChangeHooks(config *Config) {
	for _, hook := range m.changeHooks {
		go hook(config)
	}
}

// expandPath expands ~ and environment variables in paths.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	return os.ExpandEnv(path), nil
}

// getProfilesDir returns the directory containing configuration profiles.
func getProfilesDir() string {
	if _, err := os.Stat("internal/profiles"); err == nil {
		return "internal/profiles"
	}
	return "/etc/convergent/profiles"
}

// applyEnvOverrides applies CONVERGENT_* environment variable overrides
// on top of the TOML-decoded defaults.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONVERGENT_LISTEN_ADDRESS"); v != "" {
		cfg.Transport.ListenAddress = v
	}
	if v := os.Getenv("CONVERGENT_NATS_URL"); v != "" {
		cfg.Transport.NATSURL = v
	}
	if v := os.Getenv("CONVERGENT_TLS_CERT_FILE"); v != "" {
		cfg.Transport.TLS.CertFile = v
	}
	if v := os.Getenv("CONVERGENT_TLS_KEY_FILE"); v != "" {
		cfg.Transport.TLS.KeyFile = v
	}
	if v := os.Getenv("CONVERGENT_TLS_CA_FILE"); v != "" {
		cfg.Transport.TLS.CAFile = v
	}
	if v := os.Getenv("CONVERGENT_TLS_SKIP_VERIFY"); v == "true" || v == "1" {
		cfg.Transport.TLS.SkipVerify = true
	}
	if v := os.Getenv("CONVERGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
