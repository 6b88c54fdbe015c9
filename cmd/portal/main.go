package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/config"
	"github.com/garyjia/process-portal/pkg/utils"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "portal",
		Usage:   "Process portal: lifecycle, approval and collaborative editing of business processes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "configs/config.yaml",
				Sources: cli.EnvVars("PORTAL_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newExportAuditCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, the logger and the snowflake node shared by every command
func bootstrap(command *cli.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := utils.InitIDGenerator(cfg.NodeID); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
