package main

import (
	"context"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/container"
)

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit",
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, logger, err := bootstrap(command)
			if err != nil {
				return err
			}
			defer logger.Sync()

			bundle, err := container.ProvideDatabase(ctx, &cfg.Database, logger)
			if err != nil {
				return err
			}
			defer bundle.DB.Close()

			logger.Info("Database is up to date", zap.String("path", cfg.Database.Path))
			return nil
		},
	}
}
