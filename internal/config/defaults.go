package config

import (
	"time"

	"github.com/fyrsmithlabs/pipelined/internal/logging"
	"github.com/fyrsmithlabs/pipelined/internal/telemetry"
)

// DefaultConfig returns the baseline configuration before file and
// environment overrides. The workflows root is resolved in Load because
// it depends on the user's home directory.
func DefaultConfig() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			ValidatorTimeout:      5 * time.Minute,
			MaxParallelValidators: 3,
		},
		Invoker: InvokerConfig{
			NATSURL:        "nats://localhost:4222",
			SubjectPrefix:  "pipelined.stage",
			RequestTimeout: 10 * time.Minute,
			RateLimit: RateLimitConfig{
				Enabled:   false,
				PerSecond: 5,
				Burst:     5,
			},
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging:   *logging.DefaultConfig(),
		Telemetry: *telemetry.DefaultConfig(),
	}
}
