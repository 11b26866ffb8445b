package janitor

import (
	"context"
	"log/slog"
	"time"
)

// SpawnBackground starts a goroutine that runs Prune once immediately, then
// on a fixed Interval, until ctx is cancelled. A panic inside one prune pass
// is recovered and logged; it never propagates out of the goroutine, so a
// single bad pass cannot take down the host process.
func (j *Janitor) SpawnBackground(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	go func() {
		logger.Info("janitor background service started",
			"interval", j.config.Interval, "dry_run", j.config.DryRun)

		j.runOnce(logger)

		ticker := time.NewTicker(j.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("janitor background service stopped")
				return
			case <-ticker.C:
				j.runOnce(logger)
			}
		}
	}()
}

// runOnce runs a single prune pass with panic recovery, so malformed policy
// input or a storage-layer bug surfaces as a log line instead of crashing
// the process running the background loop.
func (j *Janitor) runOnce(logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("janitor prune pass panicked", "recovered", r)
		}
	}()

	report, err := j.Prune(time.Now())
	if err != nil {
		logger.Error("janitor prune pass failed", "error", err)
		return
	}
	logger.Info("janitor prune pass complete",
		"scanned", report.ItemsScanned,
		"pruned", report.ItemsPruned,
		"spared_pinned", report.ItemsSparedPinned,
		"spared_window", report.ItemsSparedWindow,
		"bytes_freed", report.TotalBytesFreed,
		"dry_run", report.DryRun)
}
