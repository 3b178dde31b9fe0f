// Package export schedules the periodic blocklist snapshot. The job runs
// independently of the webhook path: it only reads the role store and
// writes to blob storage.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pacificderg/autoblock-bot/pkg/blob"
	"github.com/pacificderg/autoblock-bot/pkg/config"
	"github.com/pacificderg/autoblock-bot/pkg/export"
	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/metrics"
	"github.com/pacificderg/autoblock-bot/pkg/models"
)

// defaultCron maps an empty cron to daily @02:00.
const defaultCron = "0 2 * * *"

// Start starts the export scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.ExportConfig, dst *blob.Store, role models.Role) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("export_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("export_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid export cron expression: %s", cfg.Cron)
	}

	logger.Info("export_enabled", "cron", cronExpr, "role", role)
	ctx2, cancel := context.WithCancel(ctx)

	if cfg.OnStartup {
		if _, ok := dst.PresignedURL(export.ArchiveKey); !ok {
			if err := runOnce(dst, role); err != nil {
				logger.Error("export_startup_run_error", "error", err)
			}
		}
	}

	go runScheduler(ctx2, cronExpr, dst, role)
	return cancel, nil
}

func runOnce(dst *blob.Store, role models.Role) error {
	if err := export.Run(dst, role); err != nil {
		return err
	}
	metrics.Count(metrics.EventExportCompleted)
	return nil
}

// runScheduler computes the next tick for the configured cron expression
// and sleeps until then.
func runScheduler(ctx context.Context, cronExpr string, dst *blob.Store, role models.Role) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("export_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("export_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := runOnce(dst, role); err != nil {
				logger.Error("export_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("export_scheduler_stopping")
			return
		}
	}
}
