package intake

import (
	"context"

	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/storage"
)

// JournalListener appends every outcome to the outcome journal. Journal
// failures are logged; they never change an outcome.
type JournalListener struct {
	repo       storage.OutcomeWriteRepository
	instanceID string
}

func NewJournalListener(repo storage.OutcomeWriteRepository, instanceID string) *JournalListener {
	return &JournalListener{repo: repo, instanceID: instanceID}
}

func (j *JournalListener) OnOutcome(ctx context.Context, out Outcome) {
	if err := j.repo.RecordOutcome(ctx, j.record(out)); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to journal outcome", "err", err)
	}
}

func (j *JournalListener) record(out Outcome) storage.OutcomeRecord {
	rec := storage.OutcomeRecord{
		IntakeID:    out.IntakeID,
		Lane:        out.Lane,
		FileName:    out.Ref.Name,
		SourcePath:  out.Ref.Path,
		Status:      string(out.Status),
		Destination: out.Destination,
		OutputPath:  out.OutputPath,
		InstanceID:  j.instanceID,
		Size:        out.Ref.Size,
		StartedAt:   out.StartedAt,
		FinishedAt:  out.FinishedAt,
	}

	if out.Err != nil {
		rec.Error = out.Err.Error()
	}

	if out.RelocateErr != nil {
		rec.Status = storage.StatusRelocationFailed
		rec.Error = out.RelocateErr.Error()
	}

	return rec
}
