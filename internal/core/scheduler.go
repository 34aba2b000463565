package core

// scheduler.go takes periodic backups in addition to the ones written after
// each mutation. It is long-running and stops when its context is cancelled;
// a failed backup is logged and the schedule continues.

import (
	"context"
	"log/slog"
	"time"
)

// StartBackupScheduler writes a backup every interval until ctx is done.
// It returns immediately when backups are disabled or interval <= 0.
func (s *Service) StartBackupScheduler(ctx context.Context, interval time.Duration) {
	if s.backups == nil || interval <= 0 {
		return
	}
	slog.Info("backup scheduler started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduledBackup(ctx)
		}
	}
}

func (s *Service) runScheduledBackup(ctx context.Context) {
	bctx, cancel := context.WithTimeout(ctx, s.opts.BackupTimeout)
	defer cancel()
	// Errors are recorded in Status by Backup.
	_, _ = s.Backup(bctx, "scheduled")
}
