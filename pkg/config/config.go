// Package config loads and validates dispatchd's static configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents dispatchd's static configuration.
//
// This structure captures everything dispatchd needs before it can start
// serving: logging, telemetry, the control-plane API, the dispatcher's own
// runtime knobs, account storage, and filter plugins. Which handlers and
// approvers are registered, which accounts exist, and which filter rules
// are active are all dynamic state managed at runtime through the registry,
// account store and filter plugin loader, not through this file.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DISPATCHD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ControlPlane contains the control plane HTTP API server configuration
	ControlPlane ControlPlaneConfig `mapstructure:"controlplane" yaml:"controlplane"`

	// Dispatch contains the dispatcher event loop's own runtime knobs
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`

	// AccountStore configures the pluggable account-storage backend
	AccountStore AccountStoreConfig `mapstructure:"account_store" yaml:"account_store"`

	// FilterPlugins configures the builtin and hot-reloaded channel filters
	FilterPlugins FilterPluginsConfig `mapstructure:"filter_plugins" yaml:"filter_plugins"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ControlPlaneConfig contains control plane API server configuration.
type ControlPlaneConfig struct {
	// Port is the HTTP port the control plane API listens on
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWTSigningKey signs and verifies operator session tokens.
	// ApplyDefaults replaces an empty value with a development
	// placeholder; Validate rejects an empty key.
	JWTSigningKey string `mapstructure:"jwt_signing_key" yaml:"jwt_signing_key,omitempty"`

	// JWTIssuer is the "iss" claim dispatchd stamps onto issued tokens
	JWTIssuer string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`

	// TokenTTL is how long an issued operator session token remains valid
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// DispatchConfig contains the dispatcher event loop's own runtime knobs.
type DispatchConfig struct {
	// ClientNamespace is the well-known name prefix every registered
	// endpoint and well-known client name is validated against
	// (e.g. "org.example.DispatchClient").
	ClientNamespace string `mapstructure:"client_namespace" validate:"required" yaml:"client_namespace"`

	// ObjectPathBase is the object path prefix new dispatch operations are
	// allocated under (e.g. "/org/example/DispatchOperation/").
	ObjectPathBase string `mapstructure:"object_path_base" validate:"required" yaml:"object_path_base"`

	// CallTimeout bounds every individual client out-call
	// (ObserveChannels / AddDispatchOperation / HandleChannels).
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"required,gt=0" yaml:"call_timeout"`

	// ShutdownTimeout is the maximum time to wait for the event loop and
	// in-flight dispatch operations to drain during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// AccountStoreConfig configures the pluggable account-storage backend.
type AccountStoreConfig struct {
	// Driver selects the account storage backend.
	// Valid values: sqlite, postgres, s3
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres s3" yaml:"driver"`

	// DSN is the backend-specific data source name (file path, connection
	// string, or bucket URI).
	DSN string `mapstructure:"dsn" validate:"required" yaml:"dsn"`
}

// FilterPluginsConfig configures the filter chain's builtin and
// hot-reloaded filter rules.
type FilterPluginsConfig struct {
	// Builtin lists the builtin filter plugins to install at startup, each
	// scoped to the channel type/direction it gates (the chain itself is
	// keyed by (channel_type, direction), so a builtin name alone isn't
	// enough to install it).
	Builtin []BuiltinFilterConfig `mapstructure:"builtin" yaml:"builtin"`

	// RulesDir is a directory of YAML filter rule files, hot-reloaded on
	// change via fsnotify. Empty disables hot reload.
	RulesDir string `mapstructure:"rules_dir" yaml:"rules_dir,omitempty"`
}

// BuiltinFilterConfig installs one registered builtin (pkg/filterplugin)
// into the chain for a specific channel type and direction.
type BuiltinFilterConfig struct {
	// Name is a builtin registered via filterplugin.RegisterBuiltin
	// (see filterplugin.BuiltinNames for the compiled-in set).
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// ChannelType is the channel type this builtin gates, e.g.
	// "org.example.Call".
	ChannelType string `mapstructure:"channel_type" validate:"required" yaml:"channel_type"`

	// Direction is the channel direction this builtin gates.
	// Valid values: incoming, outgoing
	Direction string `mapstructure:"direction" validate:"required,oneof=incoming outgoing" yaml:"direction"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DISPATCHD_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when no config
// file is present at the default location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dispatchd init\n\n"+
				"Or specify a custom config file:\n"+
				"  dispatchd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  dispatchd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config may carry a JWT signing key, hence 0600.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DISPATCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dispatchd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dispatchd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
