package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Loader handles configuration loading from environment variables, used as
// an alternative entry point to applyEnvOverrides for callers that want to
// apply env overrides to an arbitrary already-loaded Config (e.g. one
// merged from several profiles) rather than only at Manager.Load time.
type Loader struct {
	envPrefix string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "CONVERGENT_",
	}
}

// LoadFromEnvironment loads configuration from environment variables.
func (l *Loader) LoadFromEnvironment(cfg *Config) error {
	return l.applyEnvOverrides(reflect.ValueOf(cfg).Elem(), "")
}

// applyEnvOverrides recursively applies environment variable overrides.
func (l *Loader) applyEnvOverrides(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")

		var envName string
		if envTag != "" {
			envName = envTag
		} else {
			fieldName := strings.ToUpper(fieldType.Name)
			if prefix != "" {
				envName = l.envPrefix + prefix + "_" + fieldName
			} else {
				envName = l.envPrefix + fieldName
			}
		}

		switch field.Kind() {
		case reflect.Struct:
			newPrefix := prefix
			if newPrefix != "" {
				newPrefix += "_"
			}
			newPrefix += strings.ToUpper(fieldType.Name)
			if err := l.applyEnvOverrides(field, newPrefix); err != nil {
				return err
			}

		case reflect.String:
			if value := os.Getenv(envName); value != "" {
				field.SetString(value)
			}

		case reflect.Bool:
			if value := os.Getenv(envName); value != "" {
				boolVal, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("parsing bool from %s: %w", envName, err)
				}
				field.SetBool(boolVal)
			}

		case reflect.Int, reflect.Int64:
			if value := os.Getenv(envName); value != "" {
				intVal, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return fmt.Errorf("parsing int from %s: %w", envName, err)
				}
				field.SetInt(intVal)
			}

		case reflect.Float64:
			if value := os.Getenv(envName); value != "" {
				floatVal, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return fmt.Errorf("parsing float from %s: %w", envName, err)
				}
				field.SetFloat(floatVal)
			}

		case reflect.Map:
			if fieldType.Name == "Features" {
				l.loadFeaturesFromEnv(field, envName)
			}

		default:
			if field.Type() == reflect.TypeOf(time.Duration(0)) {
				if value := os.Getenv(envName); value != "" {
					duration, err := time.ParseDuration(value)
					if err != nil {
						return fmt.Errorf("parsing duration from %s: %w", envName, err)
					}
					field.Set(reflect.ValueOf(duration))
				}
			}
		}
	}

	return nil
}

// loadFeaturesFromEnv loads feature flags from environment variables like
// CONVERGENT_FEATURES_FEATURENAME=true.
func (l *Loader) loadFeaturesFromEnv(field reflect.Value, prefix string) {
	environ := os.Environ()
	featurePrefix := prefix + "_"

	if field.IsNil() {
		field.Set(reflect.MakeMap(field.Type()))
	}

	for _, env := range environ {
		if strings.HasPrefix(env, featurePrefix) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				featureName := strings.ToLower(strings.TrimPrefix(parts[0], featurePrefix))
				if value, err := strconv.ParseBool(parts[1]); err == nil {
					field.SetMapIndex(reflect.ValueOf(featureName), reflect.ValueOf(value))
				}
			}
		}
	}
}

// MergeConfigs merges multiple configurations, with later configs taking
// precedence. Used by ProfileManager.ApplyProfile's callers that want to
// layer a profile on top of environment-sourced overrides rather than
// replace wholesale.
func MergeConfigs(base *Config, overlays ...*Config) *Config {
	result := *base

	for _, overlay := range overlays {
		if overlay == nil {
			continue
		}

		mergeTransport(&result.Transport, &overlay.Transport)
		mergeBroadcast(&result.Broadcast, &overlay.Broadcast)
		mergeLogging(&result.Logging, &overlay.Logging)

		if overlay.Features != nil {
			if result.Features == nil {
				result.Features = make(map[string]bool)
			}
			for k, v := range overlay.Features {
				result.Features[k] = v
			}
		}

		if overlay.Version != "" {
			result.Version = overlay.Version
		}
		if overlay.Profile != "" {
			result.Profile = overlay.Profile
		}
	}

	return &result
}

// mergeTransport merges transport configurations.
func mergeTransport(base, overlay *TransportConfig) {
	if overlay.ListenAddress != "" {
		base.ListenAddress = overlay.ListenAddress
	}
	if overlay.NATSURL != "" {
		base.NATSURL = overlay.NATSURL
	}
	if overlay.PingInterval > 0 {
		base.PingInterval = overlay.PingInterval
	}
	if overlay.InactivityTimeout > 0 {
		base.InactivityTimeout = overlay.InactivityTimeout
	}
	if overlay.SendTimeout > 0 {
		base.SendTimeout = overlay.SendTimeout
	}

	mergeTLS(&base.TLS, &overlay.TLS)
}

// mergeTLS merges TLS configurations.
func mergeTLS(base, overlay *TLSConfig) {
	if overlay.CertFile != "" {
		base.CertFile = overlay.CertFile
	}
	if overlay.KeyFile != "" {
		base.KeyFile = overlay.KeyFile
	}
	if overlay.CAFile != "" {
		base.CAFile = overlay.CAFile
	}
	base.SkipVerify = overlay.SkipVerify
}

// mergeBroadcast merges broadcast-service configurations.
func mergeBroadcast(base, overlay *BroadcastConfig) {
	if overlay.BatchingDelay > 0 {
		base.BatchingDelay = overlay.BatchingDelay
	}
	if overlay.TrackerCapacity > 0 {
		base.TrackerCapacity = overlay.TrackerCapacity
	}
	if overlay.FragmentRate > 0 {
		base.FragmentRate = overlay.FragmentRate
	}
	if overlay.FragmentBurst > 0 {
		base.FragmentBurst = overlay.FragmentBurst
	}
}

// mergeLogging merges logging configurations.
func mergeLogging(base, overlay *LoggingConfig) {
	if overlay.Level != "" {
		base.Level = overlay.Level
	}
	if overlay.Format != "" {
		base.Format = overlay.Format
	}
	if overlay.Output != "" {
		base.Output = overlay.Output
	}
	base.EnableColor = overlay.EnableColor
}
