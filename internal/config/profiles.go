package config

import (
	"embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed profiles/*.toml
var profilesFS embed.FS

// ProfileManager manages configuration profiles.
type ProfileManager struct {
	manager *Manager
}

// NewProfileManager creates a new profile manager.
func NewProfileManager(manager *Manager) *ProfileManager {
	return &ProfileManager{
		manager: manager,
	}
}

// ListProfiles returns all available profile names.
func (pm *ProfileManager) ListProfiles() ([]string, error) {
	entries, err := profilesFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading profiles directory: %w", err)
	}

	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
			profiles = append(profiles, strings.TrimSuffix(entry.Name(), ".toml"))
		}
	}

	return profiles, nil
}

// LoadProfile loads a profile by name.
func (pm *ProfileManager) LoadProfile(profileName string) (*Config, error) {
	data, err := profilesFS.ReadFile("profiles/" + profileName + ".toml")
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", profileName, err)
	}

	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", profileName, err)
	}
	cfg.Profile = profileName

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating profile %s: %w", profileName, err)
	}

	return cfg, nil
}

// ApplyProfile applies a named profile to the current configuration.
func (pm *ProfileManager) ApplyProfile(profileName string) error {
	profile, err := pm.LoadProfile(profileName)
	if err != nil {
		return err
	}

	return pm.manager.Update(func(cfg *Config) {
		*cfg = *profile
	})
}

// CompareProfiles compares two profiles and returns differences.
func (pm *ProfileManager) CompareProfiles(profile1, profile2 string) (map[string]interface{}, error) {
	cfg1, err := pm.LoadProfile(profile1)
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", profile1, err)
	}

	cfg2, err := pm.LoadProfile(profile2)
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", profile2, err)
	}

	differences := make(map[string]interface{})

	if cfg1.Broadcast.TrackerCapacity != cfg2.Broadcast.TrackerCapacity {
		differences["broadcast.tracker_capacity"] = map[string]int{
			profile1: cfg1.Broadcast.TrackerCapacity,
			profile2: cfg2.Broadcast.TrackerCapacity,
		}
	}

	if cfg1.Broadcast.BatchingDelay != cfg2.Broadcast.BatchingDelay {
		differences["broadcast.batching_delay"] = map[string]string{
			profile1: cfg1.Broadcast.BatchingDelay.String(),
			profile2: cfg2.Broadcast.BatchingDelay.String(),
		}
	}

	if cfg1.Broadcast.FragmentRate != cfg2.Broadcast.FragmentRate {
		differences["broadcast.fragment_rate"] = map[string]float64{
			profile1: cfg1.Broadcast.FragmentRate,
			profile2: cfg2.Broadcast.FragmentRate,
		}
	}

	if cfg1.Transport.PingInterval != cfg2.Transport.PingInterval {
		differences["transport.ping_interval"] = map[string]string{
			profile1: cfg1.Transport.PingInterval.String(),
			profile2: cfg2.Transport.PingInterval.String(),
		}
	}

	return differences, nil
}

// RecommendProfile recommends a profile based on expected deployment
// characteristics.
func (pm *ProfileManager) RecommendProfile(characteristics ProfileCharacteristics) (string, error) {
	profiles, err := pm.ListProfiles()
	if err != nil {
		return "", err
	}

	bestProfile := "default"
	bestScore := 0

	for _, profile := range profiles {
		score := pm.scoreProfile(profile, characteristics)
		if score > bestScore {
			bestScore = score
			bestProfile = profile
		}
	}

	return bestProfile, nil
}

// ProfileCharacteristics describes the expected deployment shape a profile
// should be picked for.
type ProfileCharacteristics struct {
	FleetSize       FleetSize       `toml:"fleet_size"`
	ConnectionChurn ConnectionChurn `toml:"connection_churn"`
	FragmentVolume  FragmentVolume  `toml:"fragment_volume"`
	LatencyPriority LatencyPriority `toml:"latency_priority"`
}

type FleetSize string

const (
	FleetSizeSmall FleetSize = "small" // < 10 agents
	FleetSizeLarge FleetSize = "large" // > 100 agents
)

type ConnectionChurn string

const (
	ConnectionChurnLow  ConnectionChurn = "low"
	ConnectionChurnHigh ConnectionChurn = "high" // frequent reconnects, e.g. spot fleets
)

type FragmentVolume string

const (
	FragmentVolumeLow  FragmentVolume = "low"
	FragmentVolumeHigh FragmentVolume = "high" // many small per-agent state fragments
)

type LatencyPriority string

const (
	LatencyPriorityLow    LatencyPriority = "low"    // throughput over latency: batch aggressively
	LatencyPriorityMedium LatencyPriority = "medium"
	LatencyPriorityHigh   LatencyPriority = "high" // latency over throughput: batch tightly
)

// scoreProfile scores how well a profile matches the characteristics.
func (pm *ProfileManager) scoreProfile(profileName string, characteristics ProfileCharacteristics) int {
	score := 0

	switch profileName {
	case "large_fleet":
		if characteristics.FleetSize == FleetSizeLarge {
			score += 3
		}
		if characteristics.FragmentVolume == FragmentVolumeHigh {
			score += 2
		}

	case "low_latency":
		if characteristics.LatencyPriority == LatencyPriorityHigh {
			score += 3
		}
		if characteristics.FleetSize == FleetSizeSmall {
			score += 1
		}

	case "unstable_network":
		if characteristics.ConnectionChurn == ConnectionChurnHigh {
			score += 3
		}

	case "default":
		score = 1
	}

	return score
}

// GetCurrentProfile returns the name of the currently active profile.
func (pm *ProfileManager) GetCurrentProfile() string {
	return pm.manager.Get().Profile
}

// CreateCustomProfile creates a custom profile based on current configuration.
func (pm *ProfileManager) CreateCustomProfile(name string) (*Config, error) {
	current := pm.manager.Get()

	custom := *current
	custom.Profile = name
	custom.Version = "custom"

	return &custom, nil
}
