package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/featurekit/pkg/telemetry"
)

// LogLevelEnv overrides the configured log level.
const LogLevelEnv = "FEATUREKIT_LOG_LEVEL"

// AppConfig is the configuration of the featurekit command.
type AppConfig struct {
	// Environment is the path of the environment fixture checked by
	// dependency checkers.
	Environment string `yaml:"environment"`

	// OptionsDB is the SQLite option store path. Empty disables the store.
	OptionsDB string `yaml:"options_db"`

	// PolicyPaths lists additional audit policy files or directories.
	PolicyPaths []string `yaml:"policy_paths" validate:"dive,required"`

	// ReadyEvent is the host event after which the tree may initialize.
	ReadyEvent string `yaml:"ready_event" validate:"required"`

	// Profile selects the telemetry preset the telemetry section is read
	// over: default, development, production or test.
	Profile string `yaml:"profile" validate:"omitempty,oneof=default development production test"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry *telemetry.Config `yaml:"telemetry" validate:"required"`
}

// telemetryPreset returns the telemetry configuration named by profile.
func telemetryPreset(profile string) (*telemetry.Config, error) {
	switch profile {
	case "", "default":
		return telemetry.DefaultConfig(), nil
	case "development":
		return telemetry.DevelopmentConfig(), nil
	case "production":
		return telemetry.ProductionConfig(), nil
	case "test":
		return telemetry.TestConfig(), nil
	default:
		return nil, fmt.Errorf("unknown telemetry profile %q", profile)
	}
}

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		ReadyEvent: "plugins_loaded",
		Telemetry:  telemetry.DefaultConfig(),
	}
}

// LoadAppConfig reads path over the defaults. The telemetry section is read
// over the preset named by the profile field. An empty path yields the
// defaults. The LogLevelEnv variable takes precedence over the file.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		var probe struct {
			Profile string `yaml:"profile"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if cfg.Telemetry, err = telemetryPreset(probe.Profile); err != nil {
			return nil, err
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if level := os.Getenv(LogLevelEnv); level != "" {
		cfg.Telemetry.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the telemetry configuration.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
