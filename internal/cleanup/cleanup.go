package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/storage"
)

// Result reports what a sweep did. Settled holds the ids of records the sweep
// is done with: files it removed and files that were already gone.
type Result struct {
	Deleted int
	Settled []int64
}

// Sweep deletes processed files committed longer than keepDuration ago and
// marks their journal rows so later sweeps skip them.
func Sweep(ctx context.Context, repo storage.OutcomeSweepRepository, keepDuration time.Duration) (Result, error) {
	now := time.Now()

	records, err := repo.GetCommittedBefore(ctx, now.Add(-keepDuration))
	if err != nil {
		return Result{}, fmt.Errorf("failed to get committed outcomes: %w", err)
	}

	res, sweepErr := DeleteExpiredFiles(ctx, records, keepDuration)

	if err := repo.MarkSwept(ctx, res.Settled, now); err != nil {
		return res, fmt.Errorf("failed to mark outcomes swept: %w", errors.Join(err, sweepErr))
	}

	return res, sweepErr
}

// DeleteExpiredFiles removes committed files from their processed directory
// once they are older than keepDuration. Records without a finish time fall
// back to the file's modification time.
func DeleteExpiredFiles(ctx context.Context, records []storage.OutcomeRecord, keepDuration time.Duration) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	var res Result

	for _, rec := range records {
		if rec.Status != storage.StatusCommitted || rec.Destination == "" {
			continue
		}

		info, err := os.Stat(rec.Destination)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.Settled = append(res.Settled, rec.ID) // already deleted

				continue
			}

			logger.Error("failed to stat processed file", "file", rec.Destination, "err", err)

			return res, err
		}

		finishedAt := rec.FinishedAt
		if finishedAt.IsZero() {
			logger.Warn("missing finish time, using file mod time", "file", rec.Destination)

			finishedAt = info.ModTime()
		}

		if now.Sub(finishedAt) <= keepDuration {
			continue
		}

		if err := os.Remove(rec.Destination); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("failed to delete expired processed file", "file", rec.Destination, "err", err)

			return res, err
		}

		res.Deleted++
		res.Settled = append(res.Settled, rec.ID)

		logger.Info("deleted expired processed file", "lane", rec.Lane, "file", rec.Destination)
	}

	return res, nil
}
