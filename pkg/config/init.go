package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig writes a sample configuration file to the default config
// location, refusing to overwrite an existing file unless force is set.
// It returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, refusing to
// overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	secret, err := randomSigningKey()
	if err != nil {
		return fmt.Errorf("failed to generate JWT signing key: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfigYAML(secret)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// randomSigningKey generates a 64-character hex string (32 bytes of
// entropy), matching the openssl rand -hex 32 production recommendation
// printed by `dispatchd init`.
func randomSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// sampleConfigYAML renders a commented starter configuration. It is kept as
// a literal template, not a marshaled Config, so the generated file can
// carry explanatory comments GetDefaultConfig's zero-value struct can't.
func sampleConfigYAML(jwtSecret string) string {
	return fmt.Sprintf(`# Channel Dispatch Operation configuration file
#
# All options below may also be set via DISPATCHD_<SECTION>_<KEY>
# environment variables, which take precedence over this file.

logging:
  level: "INFO"
  format: "text"
  output: "stdout"

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: false
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: "http://localhost:4040"

metrics:
  enabled: true
  port: 9090

controlplane:
  port: 8080
  read_timeout: "10s"
  write_timeout: "10s"
  idle_timeout: "60s"
  jwt_signing_key: %q
  jwt_issuer: "dispatchd"
  token_ttl: "1h"

dispatch:
  client_namespace: "org.example.DispatchClient"
  object_path_base: "/org/example/DispatchOperation/"
  call_timeout: "30s"
  shutdown_timeout: "30s"

account_store:
  driver: "sqlite"
  dsn: "/var/lib/dispatchd/accounts.db"

filter_plugins:
  builtin: []
  rules_dir: ""
`, jwtSecret)
}
