package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Validate validates the entire configuration.
func Validate(cfg *Config) error {
	var errors ValidationErrors

	if errs := validateTransport(&cfg.Transport); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if errs := validateBroadcast(&cfg.Broadcast); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if errs := validateLogging(&cfg.Logging); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if cfg.Version == "" {
		errors = append(errors, ValidationError{
			Field:   "version",
			Value:   cfg.Version,
			Message: "version cannot be empty",
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// validateTransport validates transport configuration.
func validateTransport(cfg *TransportConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
			errors = append(errors, ValidationError{
				Field:   "transport.listen_address",
				Value:   cfg.ListenAddress,
				Message: fmt.Sprintf("invalid host:port: %v", err),
			})
		}
	}

	if cfg.NATSURL == "" {
		errors = append(errors, ValidationError{
			Field:   "transport.nats_url",
			Value:   cfg.NATSURL,
			Message: "cannot be empty",
		})
	}

	if errs := validateTLS(&cfg.TLS); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if cfg.PingInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "transport.ping_interval",
			Value:   cfg.PingInterval,
			Message: "must be greater than 0",
		})
	}

	if cfg.InactivityTimeout <= cfg.PingInterval {
		errors = append(errors, ValidationError{
			Field:   "transport.inactivity_timeout",
			Value:   cfg.InactivityTimeout,
			Message: "must exceed ping_interval or every connection will be reaped between pings",
		})
	}

	if cfg.SendTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "transport.send_timeout",
			Value:   cfg.SendTimeout,
			Message: "must be greater than 0",
		})
	}

	return errors
}

// validateTLS validates mutual-TLS material paths. An entirely empty
// TLSConfig is allowed (plaintext dev mode); a partially filled one is not,
// since cert/key/ca must be supplied together for mTLS.
func validateTLS(cfg *TLSConfig) ValidationErrors {
	var errors ValidationErrors

	allEmpty := cfg.CertFile == "" && cfg.KeyFile == "" && cfg.CAFile == ""
	if allEmpty {
		return errors
	}

	if cfg.CertFile == "" {
		errors = append(errors, ValidationError{Field: "transport.tls.cert_file", Value: cfg.CertFile, Message: "required when tls is configured"})
	}
	if cfg.KeyFile == "" {
		errors = append(errors, ValidationError{Field: "transport.tls.key_file", Value: cfg.KeyFile, Message: "required when tls is configured"})
	}
	if cfg.CAFile == "" {
		errors = append(errors, ValidationError{Field: "transport.tls.ca_file", Value: cfg.CAFile, Message: "required when tls is configured"})
	}

	return errors
}

// validateBroadcast validates controller broadcast-service tuning.
func validateBroadcast(cfg *BroadcastConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.BatchingDelay <= 0 {
		errors = append(errors, ValidationError{
			Field:   "broadcast.batching_delay",
			Value:   cfg.BatchingDelay,
			Message: "must be greater than 0",
		})
	}

	if cfg.TrackerCapacity <= 0 {
		errors = append(errors, ValidationError{
			Field:   "broadcast.tracker_capacity",
			Value:   cfg.TrackerCapacity,
			Message: "must be greater than 0",
		})
	}

	if cfg.FragmentRate <= 0 {
		errors = append(errors, ValidationError{
			Field:   "broadcast.fragment_rate",
			Value:   cfg.FragmentRate,
			Message: "must be greater than 0",
		})
	}

	if cfg.FragmentBurst <= 0 {
		errors = append(errors, ValidationError{
			Field:   "broadcast.fragment_burst",
			Value:   cfg.FragmentBurst,
			Message: "must be greater than 0",
		})
	}

	return errors
}

// validateLogging validates logging configuration.
func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errors ValidationErrors

	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, strings.ToLower(cfg.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   cfg.Level,
			Message: fmt.Sprintf("must be one of: %v", validLevels),
		})
	}

	validFormats := []string{"text", "json", "logfmt"}
	if !contains(validFormats, cfg.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   cfg.Format,
			Message: fmt.Sprintf("must be one of: %v", validFormats),
		})
	}

	if cfg.Output != "stdout" && cfg.Output != "stderr" {
		dir := filepath.Dir(cfg.Output)
		if _, err := os.Stat(dir); err != nil {
			errors = append(errors, ValidationError{
				Field:   "logging.output",
				Value:   cfg.Output,
				Message: fmt.Sprintf("directory does not exist: %s", dir),
			})
		}
	}

	return errors
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
