package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/container"
	httpapi "github.com/garyjia/process-portal/internal/interfaces/http"
)

func newExportAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "export-audit",
		Usage: "Write the approval and deletion ledgers to an xlsx workbook in the export directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Workbook file name (default audit-<timestamp>.xlsx)",
			},
			&cli.Int64Flag{
				Name:  "process",
				Usage: "Only export entries of this process id",
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "Earliest entry, RFC3339 or YYYY-MM-DD",
			},
			&cli.StringFlag{
				Name:  "until",
				Usage: "Latest entry, RFC3339 or YYYY-MM-DD",
			},
			&cli.StringFlag{
				Name:     "as",
				Usage:    "User id performing the export; needs view_audit_log",
				Required: true,
				Sources:  cli.EnvVars("PORTAL_USER"),
			},
		},
		Action: runExportAudit,
	}
}

func runExportAudit(ctx context.Context, command *cli.Command) error {
	since, err := httpapi.ParseAuditTime(command.String("since"))
	if err != nil {
		return err
	}
	until, err := httpapi.ParseAuditTime(command.String("until"))
	if err != nil {
		return err
	}

	cfg, logger, err := bootstrap(command)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	name, err := c.Services().Audit.SaveExport(ctx, command.String("as"), command.String("name"), port.HistoryFilter{
		ProcessID: command.Int64("process"),
		Since:     since,
		Until:     until,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	logger.Info("Audit workbook written", zap.String("name", name), zap.String("dir", cfg.Export.Dir))
	fmt.Fprintln(command.Root().Writer, name)
	return nil
}
