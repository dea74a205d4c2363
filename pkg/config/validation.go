package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a loaded configuration against its struct tags and a
// handful of cross-field rules that `validate` tags alone can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	if cfg.ControlPlane.JWTSigningKey == "" {
		return fmt.Errorf("controlplane.jwt_signing_key is required")
	}

	if cfg.AccountStore.Driver == "s3" && cfg.AccountStore.DSN == "" {
		return fmt.Errorf("account_store.dsn (bucket URI) is required for the s3 driver")
	}

	return nil
}
