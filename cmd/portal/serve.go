package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/container"
	httpapi "github.com/garyjia/process-portal/internal/interfaces/http"
	"github.com/garyjia/process-portal/pkg/telemetry"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override server.port",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, command *cli.Command) error {
	cfg, logger, err := bootstrap(command)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if port := command.Int("port"); port > 0 {
		cfg.Server.Port = int(port)
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}()

	logger.Info("Starting process portal",
		zap.String("version", version),
		zap.String("address", cfg.Server.Addr()),
		zap.Bool("redis_locks", cfg.Redis.Enabled),
		zap.Bool("lark", cfg.Lark.Enabled),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	services := c.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Mode:            cfg.Server.Mode,
		ServiceName:     cfg.Tracing.ServiceName,
	}, httpapi.Services{
		Process:  services.Process,
		Approval: services.Approval,
		Editing:  services.Editing,
		Deletion: services.Deletion,
		Audit:    services.Audit,
	}, func(ctx context.Context) (bool, interface{}) {
		status := c.Health(ctx)
		return status.Overall, status.Components
	}, container.NewLoggerAdapter(logger))

	// Start blocks until the signal context is cancelled
	return server.Start(ctx)
}
