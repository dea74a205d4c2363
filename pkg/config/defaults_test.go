package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Dispatch(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Dispatch.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Dispatch.ShutdownTimeout)
	}
	if cfg.Dispatch.CallTimeout != 30*time.Second {
		t.Errorf("Expected default call timeout 30s, got %v", cfg.Dispatch.CallTimeout)
	}
}

func TestApplyDefaults_ControlPlane(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ControlPlane.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.ControlPlane.Port)
	}
	if cfg.ControlPlane.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.ControlPlane.ReadTimeout)
	}
	if cfg.ControlPlane.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default write timeout 10s, got %v", cfg.ControlPlane.WriteTimeout)
	}
	if cfg.ControlPlane.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.ControlPlane.IdleTimeout)
	}
}

func TestApplyDefaults_AccountStore(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.AccountStore.Driver != "sqlite" {
		t.Errorf("Expected default account store driver 'sqlite', got %q", cfg.AccountStore.Driver)
	}
	if cfg.AccountStore.DSN == "" {
		t.Error("Expected default sqlite DSN to be set")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/dispatchd.log",
		},
		Dispatch: DispatchConfig{
			ShutdownTimeout: 60 * time.Second,
		},
		AccountStore: AccountStoreConfig{
			Driver: "postgres",
			DSN:    "postgres://localhost/accounts",
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Dispatch.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit shutdown timeout to be preserved, got %v", cfg.Dispatch.ShutdownTimeout)
	}
	if cfg.AccountStore.Driver != "postgres" {
		t.Errorf("Expected explicit account store driver to be preserved, got %q", cfg.AccountStore.Driver)
	}
	if cfg.AccountStore.DSN != "postgres://localhost/accounts" {
		t.Errorf("Expected explicit DSN to be preserved, got %q", cfg.AccountStore.DSN)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.ControlPlane.Port == 0 {
		t.Error("Default config missing API port")
	}
	if cfg.Dispatch.ClientNamespace == "" {
		t.Error("Default config missing dispatch client namespace")
	}
	if cfg.AccountStore.Driver == "" {
		t.Error("Default config missing account store driver")
	}
}
