package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

const (
	StatusCommitted        = "committed"
	StatusRolledBack       = "rolled_back"
	StatusRelocationFailed = "relocation_failed"
)

// OutcomeRecord is one journal row describing how a claimed file ended.
type OutcomeRecord struct {
	ID          int64
	IntakeID    string
	Lane        string
	FileName    string
	SourcePath  string
	Status      string
	Destination string
	OutputPath  string
	Error       string
	InstanceID  string
	Size        int64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// OutcomeWriteRepository appends outcomes to the journal.
type OutcomeWriteRepository interface {
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
}

// OutcomeReadRepository reads the journal.
type OutcomeReadRepository interface {
	// GetOutcomes returns the most recent outcomes for a lane, newest first.
	GetOutcomes(ctx context.Context, lane string, limit int) ([]OutcomeRecord, error)
}

// OutcomeSweepRepository serves the retention sweep.
type OutcomeSweepRepository interface {
	// GetCommittedBefore returns committed outcomes finished before t that
	// are still the latest commit to their destination and not yet swept.
	GetCommittedBefore(ctx context.Context, t time.Time) ([]OutcomeRecord, error)
	// MarkSwept records that the sweep is done with the given outcomes.
	MarkSwept(ctx context.Context, ids []int64, at time.Time) error
}

type OutcomeRepository interface {
	OutcomeWriteRepository
	OutcomeReadRepository
	OutcomeSweepRepository
}

// GenerateInstanceID returns a unique string for this process (hostname+pid+random).
// Journal rows carry it so reprocessing after a restart can be told apart.
func GenerateInstanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}
