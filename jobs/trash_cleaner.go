package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"groupdrive/services"
	"groupdrive/utils"
)

// TrashCleaner periodically drives unfinished subtree propagations to
// completion and then purges trash older than the retention window.
type TrashCleaner struct {
	trashService *services.TrashService
	propagator   *services.Propagator
	interval     time.Duration
	runTimeout   time.Duration
}

func NewTrashCleaner(trashService *services.TrashService, propagator *services.Propagator, interval time.Duration) *TrashCleaner {
	return &TrashCleaner{
		trashService: trashService,
		propagator:   propagator,
		interval:     interval,
		runTimeout:   30 * time.Minute,
	}
}

// Run blocks until ctx is done, cleaning once on start and then on every
// tick. A non-positive interval disables the ticker after the first run.
func (tc *TrashCleaner) Run(ctx context.Context) {
	utils.LogInfo("Starting trash cleaner job", zap.Duration("interval", tc.interval))

	tc.RunOnce(ctx)
	if tc.interval <= 0 {
		return
	}

	ticker := time.NewTicker(tc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("Trash cleaner stopped")
			return
		case <-ticker.C:
			tc.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single resume-then-purge pass and returns what it did.
func (tc *TrashCleaner) RunOnce(ctx context.Context) CleanupReport {
	ctx, cancel := context.WithTimeout(ctx, tc.runTimeout)
	defer cancel()

	var report CleanupReport
	start := time.Now()

	resumed, failed, err := tc.propagator.Resume(ctx)
	report.Resumed, report.ResumeFailed = resumed, failed
	if err != nil {
		utils.LogError("Error resuming pending propagations", err)
	}

	cutoff := tc.trashService.ExpiryCutoff()
	result, err := tc.trashService.PurgeExpired(ctx, cutoff)
	if err != nil {
		utils.LogError("Error purging expired trash", err, zap.Time("cutoff", cutoff))
		return report
	}
	report.Purged = result.Purged
	report.PurgeFailures = len(result.Failures)
	for _, f := range result.Failures {
		utils.LogWarning("Expired item could not be purged",
			zap.String("item_id", f.ItemID),
			zap.String("error", f.Error),
		)
	}

	utils.LogInfo("Trash cleanup completed",
		zap.Int("resumed", report.Resumed),
		zap.Int("resume_failed", report.ResumeFailed),
		zap.Int("purged", report.Purged),
		zap.Int("purge_failures", report.PurgeFailures),
		zap.Duration("took", time.Since(start)),
	)
	return report
}

type CleanupReport struct {
	Resumed       int
	ResumeFailed  int
	Purged        int
	PurgeFailures int
}
