package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/pipelined/internal/logging"
	"github.com/fyrsmithlabs/pipelined/internal/telemetry"
)

// Config is the full daemon configuration.
type Config struct {
	Workflows   WorkflowsConfig   `koanf:"workflows"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Invoker     InvokerConfig     `koanf:"invoker"`
	Policy      PolicyConfig      `koanf:"policy"`
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// WorkflowsConfig locates durable workflow state.
type WorkflowsConfig struct {
	// Root is the directory holding one subdirectory per workflow.
	Root string `koanf:"root"`
}

// CoordinatorConfig holds coordinator tunables.
type CoordinatorConfig struct {
	ValidatorTimeout      time.Duration `koanf:"validator_timeout"`
	MaxParallelValidators int           `koanf:"max_parallel_validators"`
	RepositoryPath        string        `koanf:"repository_path"`
}

// InvokerConfig configures stage dispatch.
type InvokerConfig struct {
	NATSURL        string          `koanf:"nats_url"`
	SubjectPrefix  string          `koanf:"subject_prefix"`
	RequestTimeout time.Duration   `koanf:"request_timeout"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig throttles outbound stage invocations.
type RateLimitConfig struct {
	Enabled   bool    `koanf:"enabled"`
	PerSecond float64 `koanf:"per_second"`
	Burst     int     `koanf:"burst"`
}

// PolicyConfig locates the project alignment policy.
type PolicyConfig struct {
	// Path to the TOML policy file; empty means the permissive default
	// policy.
	Path string `koanf:"path"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Workflows.Root == "" {
		return fmt.Errorf("workflows.root is required")
	}
	if c.Coordinator.ValidatorTimeout <= 0 {
		return fmt.Errorf("coordinator.validator_timeout must be positive")
	}
	if c.Coordinator.MaxParallelValidators <= 0 {
		return fmt.Errorf("coordinator.max_parallel_validators must be positive")
	}
	if c.Invoker.SubjectPrefix == "" {
		return fmt.Errorf("invoker.subject_prefix is required")
	}
	if c.Invoker.RequestTimeout <= 0 {
		return fmt.Errorf("invoker.request_timeout must be positive")
	}
	if c.Invoker.RateLimit.Enabled {
		if c.Invoker.RateLimit.PerSecond <= 0 || c.Invoker.RateLimit.Burst <= 0 {
			return fmt.Errorf("invoker.rate_limit per_second and burst must be positive when enabled")
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
