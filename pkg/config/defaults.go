package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyControlPlaneDefaults(&cfg.ControlPlane)
	applyDispatchDefaults(&cfg.Dispatch)
	applyAccountStoreDefaults(&cfg.AccountStore)
	applyFilterPluginsDefaults(&cfg.FilterPlugins)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyControlPlaneDefaults sets control plane API server defaults.
func applyControlPlaneDefaults(cfg *ControlPlaneConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "dispatchd"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	// Only a placeholder: production deployments must set
	// DISPATCHD_CONTROLPLANE_JWT_SIGNING_KEY or the config file equivalent.
	// Validate rejects an empty key; Load applies this default first, so a
	// config without a key (and GetDefaultConfig) passes validation.
	// `dispatchd init` writes a random key into the sample config instead.
	if cfg.JWTSigningKey == "" {
		cfg.JWTSigningKey = "dev-insecure-signing-key-change-me"
	}
}

// applyDispatchDefaults sets the dispatcher event loop's defaults.
func applyDispatchDefaults(cfg *DispatchConfig) {
	if cfg.ClientNamespace == "" {
		cfg.ClientNamespace = "org.example.DispatchClient"
	}
	if cfg.ObjectPathBase == "" {
		cfg.ObjectPathBase = "/org/example/DispatchOperation/"
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyAccountStoreDefaults sets account storage backend defaults.
func applyAccountStoreDefaults(cfg *AccountStoreConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.DSN == "" && cfg.Driver == "sqlite" {
		cfg.DSN = "/var/lib/dispatchd/accounts.db"
	}
}

// applyFilterPluginsDefaults sets filter plugin loader defaults. A channel
// type/direction with no installed filters passes every candidate
// unconditionally (filterchain.Chain.Run), so an empty Builtin list is a
// valid, permissive default rather than one needing a placeholder entry.
func applyFilterPluginsDefaults(cfg *FilterPluginsConfig) {
	// Builtin defaults to empty; operators opt individual channel
	// types/directions into a builtin filter explicitly.
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files, tests, and documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
