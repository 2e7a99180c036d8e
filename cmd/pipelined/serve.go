package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/align"
	"github.com/fyrsmithlabs/pipelined/internal/artifact"
	"github.com/fyrsmithlabs/pipelined/internal/checkpoint"
	"github.com/fyrsmithlabs/pipelined/internal/config"
	"github.com/fyrsmithlabs/pipelined/internal/coordinator"
	"github.com/fyrsmithlabs/pipelined/internal/httpapi"
	"github.com/fyrsmithlabs/pipelined/internal/invoker"
	"github.com/fyrsmithlabs/pipelined/internal/logging"
	"github.com/fyrsmithlabs/pipelined/internal/monitor"
	"github.com/fyrsmithlabs/pipelined/internal/resumer"
	"github.com/fyrsmithlabs/pipelined/internal/statefile"
	"github.com/fyrsmithlabs/pipelined/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipelined daemon",
	Long: `Run the pipelined daemon: the workflow coordinator, the HTTP status
API, and the workflows-root monitor. Stages are dispatched to
collaborators over NATS request/reply.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := cmd.Context()

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := logging.New(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	if err := os.MkdirAll(cfg.Workflows.Root, 0700); err != nil {
		return fmt.Errorf("failed to create workflows root: %w", err)
	}

	locks := statefile.NewLockRegistry()
	auditor := statefile.NewAuditor(logger.Named("audit"), false)

	artifacts, err := artifact.NewStore(cfg.Workflows.Root, locks, auditor, logger.Named("artifact"))
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}
	checkpoints, err := checkpoint.NewManager(cfg.Workflows.Root, locks, auditor, artifacts, artifacts, logger.Named("checkpoint"))
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	policy := align.DefaultPolicy()
	if cfg.Policy.Path != "" {
		policy, err = align.LoadPolicy(cfg.Policy.Path)
		if err != nil {
			return fmt.Errorf("failed to load alignment policy: %w", err)
		}
	}

	nc, err := nats.Connect(cfg.Invoker.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	dispatch, err := buildInvoker(cfg, nc, logger)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(coordinator.Config{
		ValidatorTimeout:      cfg.Coordinator.ValidatorTimeout,
		MaxParallelValidators: cfg.Coordinator.MaxParallelValidators,
		RepositoryPath:        cfg.Coordinator.RepositoryPath,
	}, align.NewGate(policy), artifacts, checkpoints, dispatch, logger.Named("coordinator"))
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	res, err := resumer.New(checkpoints, artifacts, logger.Named("resumer"))
	if err != nil {
		return fmt.Errorf("failed to create resumer: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mon, err := monitor.New(cfg.Workflows.Root, registry, logger.Named("monitor"))
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer mon.Close()
	mon.Start(ctx)

	server, err := httpapi.NewServer(coord, res, checkpoints, registry, logger.Named("http"), &httpapi.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("pipelined started",
		zap.String("workflows_root", cfg.Workflows.Root),
		zap.Int("port", cfg.Server.Port),
		zap.String("nats_url", cfg.Invoker.NATSURL),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildInvoker assembles the stage dispatch chain: NATS request/reply,
// optionally wrapped with the rate limiter, behind a registry.
func buildInvoker(cfg *config.Config, nc *nats.Conn, logger *zap.Logger) (invoker.Invoker, error) {
	natsInv, err := invoker.NewNATSInvoker(nc, cfg.Invoker.SubjectPrefix, cfg.Invoker.RequestTimeout, logger.Named("invoker"))
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS invoker: %w", err)
	}

	var inv invoker.Invoker = natsInv
	if cfg.Invoker.RateLimit.Enabled {
		inv, err = invoker.NewRateLimited(inv, cfg.Invoker.RateLimit.PerSecond, cfg.Invoker.RateLimit.Burst)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
	}

	registry := invoker.NewRegistry()
	registry.SetFallback(inv)
	return registry, nil
}
