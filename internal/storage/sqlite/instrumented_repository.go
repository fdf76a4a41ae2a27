package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/file_poller/internal/storage"
	"github.com/italolelis/file_poller/internal/telemetry"
)

// InstrumentedOutcomeRepository wraps OutcomeRepository with telemetry.
type InstrumentedOutcomeRepository struct {
	repo      *OutcomeRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedOutcomeRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedOutcomeRepository {
	return &InstrumentedOutcomeRepository{
		repo:      NewOutcomeRepository(dbConn),
		telemetry: tel,
	}
}

// RecordOutcome appends an outcome with telemetry.
func (r *InstrumentedOutcomeRepository) RecordOutcome(ctx context.Context, rec storage.OutcomeRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_outcome", func(ctx context.Context) error {
		return r.repo.RecordOutcome(ctx, rec)
	})
}

// GetOutcomes reads recent outcomes with telemetry.
func (r *InstrumentedOutcomeRepository) GetOutcomes(ctx context.Context, lane string, limit int) ([]storage.OutcomeRecord, error) {
	var result []storage.OutcomeRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_outcomes", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetOutcomes(ctx, lane, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetCommittedBefore reads expired committed outcomes with telemetry.
func (r *InstrumentedOutcomeRepository) GetCommittedBefore(ctx context.Context, t time.Time) ([]storage.OutcomeRecord, error) {
	var result []storage.OutcomeRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_committed_before", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetCommittedBefore(ctx, t)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkSwept records settled outcomes with telemetry.
func (r *InstrumentedOutcomeRepository) MarkSwept(ctx context.Context, ids []int64, at time.Time) error {
	return r.telemetry.InstrumentDBOperation(ctx, "mark_swept", func(ctx context.Context) error {
		return r.repo.MarkSwept(ctx, ids, at)
	})
}
