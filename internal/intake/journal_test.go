package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/file_poller/internal/storage"
)

type memoryJournal struct {
	mu      sync.Mutex
	records []storage.OutcomeRecord
	err     error
}

func (m *memoryJournal) RecordOutcome(_ context.Context, rec storage.OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.records = append(m.records, rec)

	return nil
}

func TestJournalListener_OnOutcome(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ref := FileRef{Path: "/in/cabecera_001.txt", Name: "cabecera_001.txt", Size: 42}

	tests := []struct {
		name       string
		outcome    Outcome
		wantStatus string
		wantErr    string
	}{
		{
			name:       "committed",
			outcome:    Outcome{Status: OutcomeCommitted, OutputPath: "/out/cabecera_1.txt", Destination: "/processed/cabecera_001.txt"},
			wantStatus: storage.StatusCommitted,
		},
		{
			name:       "rolled back",
			outcome:    Outcome{Status: OutcomeRolledBack, Err: errors.New("bad row"), Destination: "/failed/cabecera_001.txt"},
			wantStatus: storage.StatusRolledBack,
			wantErr:    "bad row",
		},
		{
			name:       "relocation failed",
			outcome:    Outcome{Status: OutcomeCommitted, RelocateErr: &RelocationError{Lane: "cabecera", File: "/in/cabecera_001.txt", Destination: "/processed/cabecera_001.txt", Err: errors.New("read-only file system")}},
			wantStatus: storage.StatusRelocationFailed,
			wantErr:    "read-only file system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memoryJournal{}
			out := tt.outcome
			out.IntakeID = "id-1"
			out.Lane = "cabecera"
			out.Ref = ref
			out.StartedAt = started
			out.FinishedAt = started.Add(time.Second)

			NewJournalListener(repo, "host-1").OnOutcome(quietContext(), out)

			require.Len(t, repo.records, 1)
			rec := repo.records[0]
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, "id-1", rec.IntakeID)
			assert.Equal(t, "cabecera_001.txt", rec.FileName)
			assert.Equal(t, ref.Path, rec.SourcePath)
			assert.Equal(t, "host-1", rec.InstanceID)
			assert.Equal(t, int64(42), rec.Size)
			assert.Equal(t, out.FinishedAt, rec.FinishedAt)

			if tt.wantErr == "" {
				assert.Empty(t, rec.Error)
			} else {
				assert.Contains(t, rec.Error, tt.wantErr)
			}
		})
	}
}

func TestJournalListener_FailureIsLogged(t *testing.T) {
	ctx, logs := capturingContext()
	repo := &memoryJournal{err: errors.New("database is locked")}

	NewJournalListener(repo, "host-1").OnOutcome(ctx, Outcome{Status: OutcomeCommitted})

	assert.Contains(t, logs.String(), "failed to journal outcome")
	assert.Contains(t, logs.String(), "database is locked")
}
