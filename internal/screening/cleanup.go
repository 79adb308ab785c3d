package screening

import (
	"context"
	"log/slog"
	"time"
)

// Pruner removes ledger rows that can no longer affect a decision.
type Pruner interface {
	Prune(ctx context.Context, now, failureCutoff time.Time) (blocks, failures int64, err error)
}

// StartCleanupTicker periodically deletes expired blocks and failure
// records older than retention. Expired blocks are also removed lazily on
// lookup; this keeps tables small for callers who never call back. The
// goroutine stops when ctx is cancelled.
func StartCleanupTicker(ctx context.Context, p Pruner, interval, retention time.Duration, logger *slog.Logger) {
	logger = logger.With("subsystem", "ledger-cleanup")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneOnce(ctx, p, time.Now(), retention, logger)
			}
		}
	}()
}

func pruneOnce(ctx context.Context, p Pruner, now time.Time, retention time.Duration, logger *slog.Logger) {
	blocks, failures, err := p.Prune(ctx, now, now.Add(-retention))
	if err != nil {
		logger.Error("ledger cleanup failed", "error", err)
		return
	}
	if blocks == 0 && failures == 0 {
		return
	}
	logger.Info("ledger cleanup", "expired_blocks", blocks, "old_failures", failures)
}
