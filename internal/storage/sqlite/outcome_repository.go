package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/file_poller/internal/storage"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OutcomeRepository implements storage.OutcomeRepository on SQLite.
type OutcomeRepository struct {
	db *sql.DB
}

func NewOutcomeRepository(dbConn *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: dbConn}
}

func (r *OutcomeRepository) RecordOutcome(ctx context.Context, rec storage.OutcomeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO intake_outcomes (
			intake_id, lane, file_name, source_path, status, destination,
			output_path, error, instance_id, size, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.IntakeID, rec.Lane, rec.FileName, rec.SourcePath, rec.Status, rec.Destination,
		rec.OutputPath, rec.Error, rec.InstanceID, rec.Size,
		rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
	)

	return err
}

func (r *OutcomeRepository) GetOutcomes(ctx context.Context, lane string, limit int) ([]storage.OutcomeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, intake_id, lane, file_name, source_path, status, destination,
			output_path, error, instance_id, size, started_at, finished_at
		FROM intake_outcomes
		WHERE lane = ?
		ORDER BY id DESC
		LIMIT ?`, lane, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// GetCommittedBefore only considers the newest commit per destination: a later
// file with the same name replaces the earlier one in the processed dir, and
// the older row must not expire the newer file.
func (r *OutcomeRepository) GetCommittedBefore(ctx context.Context, t time.Time) ([]storage.OutcomeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, intake_id, lane, file_name, source_path, status, destination,
			output_path, error, instance_id, size, started_at, finished_at
		FROM intake_outcomes
		WHERE id IN (
			SELECT MAX(id) FROM intake_outcomes
			WHERE status = ? AND destination IS NOT NULL AND destination != ''
			GROUP BY destination
		)
		AND swept_at IS NULL AND finished_at < ?
		ORDER BY id`, storage.StatusCommitted, t.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

func (r *OutcomeRepository) MarkSwept(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE intake_outcomes SET swept_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	sweptAt := at.UTC().Format(timeLayout)

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, sweptAt, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanOutcomes(rows *sql.Rows) ([]storage.OutcomeRecord, error) {
	var records []storage.OutcomeRecord

	for rows.Next() {
		var (
			rec                             storage.OutcomeRecord
			destination, output, errText    sql.NullString
			instanceID, startedAt, finished sql.NullString
			size                            sql.NullInt64
		)

		if err := rows.Scan(&rec.ID, &rec.IntakeID, &rec.Lane, &rec.FileName, &rec.SourcePath, &rec.Status,
			&destination, &output, &errText, &instanceID, &size, &startedAt, &finished); err != nil {
			return nil, err
		}

		rec.Destination = destination.String
		rec.OutputPath = output.String
		rec.Error = errText.String
		rec.InstanceID = instanceID.String
		rec.Size = size.Int64
		rec.StartedAt = parseTime(startedAt.String)
		rec.FinishedAt = parseTime(finished.String)

		records = append(records, rec)
	}

	return records, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
