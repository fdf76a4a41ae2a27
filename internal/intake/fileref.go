package intake

import (
	"time"
)

// FileRef identifies a source-directory entry as observed by a scan.
type FileRef struct {
	Path    string // absolute path
	Name    string // base name
	RelPath string // path relative to the scanned directory, kept on relocation
	Size    int64
	ModTime time.Time
}

// OutcomeStatus tags the result of handling one file.
type OutcomeStatus string

const (
	OutcomeCommitted  OutcomeStatus = "committed"
	OutcomeRolledBack OutcomeStatus = "rolled_back"
)

// Outcome is the result of one pass through the coordinator.
type Outcome struct {
	IntakeID    string
	Lane        string
	Ref         FileRef
	Status      OutcomeStatus
	OutputPath  string // set on commit
	Destination string // processed or failed path the source was moved to
	Err         error  // handler or write failure, set on rollback
	RelocateErr error  // set when the move itself failed
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Committed reports whether the handler and writer succeeded.
func (o Outcome) Committed() bool {
	return o.Status == OutcomeCommitted
}

// Relocated reports whether the source file left the source directory.
func (o Outcome) Relocated() bool {
	return o.RelocateErr == nil
}

// destName is the path of ref below a processed or failed directory.
func (r FileRef) destName() string {
	if r.RelPath == "" {
		return r.Name
	}

	return r.RelPath
}

// Duration is the time spent between claim dispatch and relocation.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
