package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "pipelined", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.Protocol)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "thrift"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Sampling.Rate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Shutdown.Timeout = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_RejectsInsecureRemote(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = true
	cfg.Endpoint = "collector.example.com:4317"
	assert.Error(t, cfg.Validate())

	cfg.Endpoint = "localhost:4317"
	assert.NoError(t, cfg.Validate())

	cfg.Endpoint = "127.0.0.1:4317"
	assert.NoError(t, cfg.Validate())

	cfg.Endpoint = "[::1]:4317"
	assert.NoError(t, cfg.Validate())
}

func TestNew_DisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_EnabledInitializesProviders(t *testing.T) {
	// Exporter construction does not dial; a dead local endpoint still
	// yields working (degradable) providers.
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "localhost:1"
	cfg.Metrics.ExportInterval = time.Hour

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
	assert.False(t, tel.IsEnabled())
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.True(t, tel.Health().Degraded)
	assert.False(t, tel.IsEnabled())
}
