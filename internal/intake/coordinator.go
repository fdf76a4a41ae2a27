package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/telemetry"
)

// OutcomeListener observes every finished file. Listeners run on the worker
// that handled the file, after relocation.
type OutcomeListener interface {
	OnOutcome(ctx context.Context, out Outcome)
}

// OutcomeListenerFunc adapts a function to OutcomeListener.
type OutcomeListenerFunc func(ctx context.Context, out Outcome)

func (f OutcomeListenerFunc) OnOutcome(ctx context.Context, out Outcome) {
	f(ctx, out)
}

// Coordinator ties the relocation of one claimed file to the outcome of its
// handler and writer: success moves it to the processed directory, any
// failure moves it to the failed directory. The move happens once, after the
// outcome is known.
type Coordinator struct {
	lane         string
	handler      Handler
	writer       Writer
	processedDir string
	failedDir    string
	telemetry    *telemetry.Telemetry
	listeners    []OutcomeListener
	now          func() time.Time
}

type CoordinatorConfig struct {
	Lane         string
	Handler      Handler
	Writer       Writer
	ProcessedDir string
	FailedDir    string
	Telemetry    *telemetry.Telemetry
	Listeners    []OutcomeListener
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	handler := cfg.Handler
	if handler == nil {
		handler = PassthroughHandler{}
	}

	return &Coordinator{
		lane:         cfg.Lane,
		handler:      handler,
		writer:       cfg.Writer,
		processedDir: cfg.ProcessedDir,
		failedDir:    cfg.FailedDir,
		telemetry:    cfg.Telemetry,
		listeners:    cfg.Listeners,
		now:          time.Now,
	}
}

// Process runs read, handle, write and relocate for ref. Every error is
// captured in the returned Outcome; none escapes to the caller.
func (c *Coordinator) Process(ctx context.Context, ref FileRef) Outcome {
	out := Outcome{
		IntakeID:  uuid.NewString(),
		Lane:      c.lane,
		Ref:       ref,
		StartedAt: c.now(),
	}

	ctx, logger := logctx.With(ctx, "file_name", ref.Name, "intake_id", out.IntakeID)

	c.telemetry.InstrumentFile(ctx, c.lane, func(ctx context.Context) (string, error) {
		logger.InfoContext(ctx, "handling file", "file_path", ref.Path, "file_size", humanize.Bytes(uint64(ref.Size)))

		outputPath, err := c.handle(ctx, ref)
		if err != nil {
			out.Status = OutcomeRolledBack
			out.Err = err
			out.Destination = filepath.Join(c.failedDir, ref.destName())
		} else {
			out.Status = OutcomeCommitted
			out.OutputPath = outputPath
			out.Destination = filepath.Join(c.processedDir, ref.destName())
		}

		if err := relocate(ref.Path, out.Destination); err != nil {
			out.RelocateErr = &RelocationError{Lane: c.lane, File: ref.Path, Destination: out.Destination, Err: err}

			c.telemetry.RecordRelocationError(c.lane)

			return "relocation_failed", out.RelocateErr
		}

		return string(out.Status), out.Err
	})

	out.FinishedAt = c.now()

	c.logOutcome(ctx, out)

	for _, l := range c.listeners {
		l.OnOutcome(ctx, out)
	}

	return out
}

func (c *Coordinator) handle(ctx context.Context, ref FileRef) (outputPath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "handler panic", "panic", r, "stack", string(debug.Stack()))

			err = &HandlerError{Lane: c.lane, File: ref.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	content, err := os.ReadFile(ref.Path)
	if err != nil {
		return "", &HandlerError{Lane: c.lane, File: ref.Name, Err: fmt.Errorf("failed to read file: %w", err)}
	}

	result, err := c.handler.Handle(ctx, c.lane, content)
	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) {
			return "", err
		}

		return "", &HandlerError{Lane: c.lane, File: ref.Name, Err: err}
	}

	if c.writer == nil {
		return "", nil
	}

	outputPath, err = c.writer.Write(ctx, c.lane, result)
	if err != nil {
		var werr *WriteError
		if errors.As(err, &werr) {
			return "", err
		}

		return "", &WriteError{Lane: c.lane, Path: outputPath, Err: err}
	}

	return outputPath, nil
}

func (c *Coordinator) logOutcome(ctx context.Context, out Outcome) {
	logger := logctx.LoggerFromContext(ctx)

	attrs := []any{
		"outcome", string(out.Status),
		"destination", out.Destination,
		"duration_ms", out.Duration().Milliseconds(),
	}

	switch {
	case out.RelocateErr != nil:
		logger.ErrorContext(ctx, "failed to relocate file, it stays claimed until restart",
			append(attrs, "handler_err", out.Err, "err", out.RelocateErr)...)
	case out.Committed():
		logger.InfoContext(ctx, "file committed", append(attrs, "output_path", out.OutputPath)...)
	default:
		logger.WarnContext(ctx, "file rolled back", append(attrs, "err", out.Err)...)
	}
}

// relocate moves src to dst with a single rename, creating dst's directory if
// needed. Files found in subdirectories keep their subpath below dst's root.
func relocate(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		return err
	}

	return nil
}
