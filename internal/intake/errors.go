package intake

import "fmt"

// ScanError represents a failure to list a lane's source directory. The cycle is
// skipped and the lane keeps polling on the next period.
type ScanError struct {
	Lane string // Lane that owns the directory
	Dir  string // Directory that could not be listed
	Err  error  // Underlying error, if any
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("lane %s: failed to scan %s: %v", e.Lane, e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// HandlerError represents a failure reading or transforming a claimed file.
// It triggers a rollback to the failed directory.
type HandlerError struct {
	Lane string // Lane that claimed the file
	File string // Name of the claimed file
	Err  error  // Underlying error, if any
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("lane %s: handler failed for %s: %v", e.Lane, e.File, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// WriteError represents a failure persisting handler output. It is treated
// exactly like a HandlerError.
type WriteError struct {
	Lane string // Lane that produced the output
	Path string // Output path that could not be written
	Err  error  // Underlying error, if any
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("lane %s: failed to write output %s: %v", e.Lane, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// RelocationError represents a failed move of a source file after its outcome
// was known. The claim is kept, so the file is not retried in this process run.
type RelocationError struct {
	Lane        string // Lane that claimed the file
	File        string // Source path of the file
	Destination string // Path the file was being moved to
	Err         error  // Underlying error, if any
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("lane %s: failed to move %s to %s: %v", e.Lane, e.File, e.Destination, e.Err)
}

func (e *RelocationError) Unwrap() error {
	return e.Err
}
