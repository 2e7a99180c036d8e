package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/pipelined/internal/logging"
	"github.com/fyrsmithlabs/pipelined/internal/telemetry"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads configuration with precedence (highest first):
//
//  1. Environment variables (SERVER_PORT -> server.port,
//     INVOKER_NATS_URL -> invoker.nats_url)
//  2. YAML config file at configPath, when it exists
//  3. Hardcoded defaults
//
// The file must be 0600 or 0400 and at most 1MB; both are checked on
// the open descriptor so the validation cannot race the read.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := readValidated(configPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	// Env vars map SECTION_FIELD_NAME to section.field_name: split on
	// the first underscore only, the rest stays in the field name.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// readValidated opens the file once and validates permissions and size
// through the descriptor before reading.
func readValidated(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return nil, fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pipelined", "config.yaml")
}

// applyDefaults fills in zero values.
func applyDefaults(cfg *Config) {
	if cfg.Workflows.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Workflows.Root = filepath.Join(home, ".local", "share", "pipelined", "workflows")
		} else {
			cfg.Workflows.Root = "workflows"
		}
	}

	def := DefaultConfig()
	if cfg.Coordinator.ValidatorTimeout == 0 {
		cfg.Coordinator.ValidatorTimeout = def.Coordinator.ValidatorTimeout
	}
	if cfg.Coordinator.MaxParallelValidators == 0 {
		cfg.Coordinator.MaxParallelValidators = def.Coordinator.MaxParallelValidators
	}
	if cfg.Invoker.NATSURL == "" {
		cfg.Invoker.NATSURL = def.Invoker.NATSURL
	}
	if cfg.Invoker.SubjectPrefix == "" {
		cfg.Invoker.SubjectPrefix = def.Invoker.SubjectPrefix
	}
	if cfg.Invoker.RequestTimeout == 0 {
		cfg.Invoker.RequestTimeout = def.Invoker.RequestTimeout
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Logging.Format == "" {
		cfg.Logging = *logging.DefaultConfig()
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry = *telemetry.DefaultConfig()
	}
}
