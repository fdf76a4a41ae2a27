package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY:
//
// Span and metric attributes are limited to bounded values: lane names,
// operation names, outcome and status values. File names, paths, intake ids
// and error messages go to logs, which carry trace_id/span_id for correlation.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, duration)

	return err
}

// InstrumentScan instruments one scan of a lane's source directory.
func (t *Telemetry) InstrumentScan(ctx context.Context, lane string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()

	err := t.InstrumentOperation(ctx, "scan", "poller", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "scan_"+lane)
		defer span.End()

		span.SetAttributes(attribute.String("lane", lane))

		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordPollCycle(lane, status, time.Since(start))

	return err
}

// OutcomeFunc handles one file and reports its outcome label.
type OutcomeFunc func(ctx context.Context) (string, error)

// InstrumentFile instruments the handling of one claimed file, from dispatch
// to relocation.
func (t *Telemetry) InstrumentFile(ctx context.Context, lane string, fn OutcomeFunc) error {
	if t == nil || t.tracer == nil {
		_, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.IncrementFilesInFlight(lane)
	defer t.DecrementFilesInFlight(lane)

	var outcome string

	err := t.InstrumentOperation(ctx, "process_file", "coordinator", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "process_file_"+lane)
		defer span.End()

		var err error

		outcome, err = fn(ctx)

		span.SetAttributes(
			attribute.String("lane", lane),
			attribute.String("outcome", outcome),
		)

		return err
	})

	t.RecordFileOutcome(lane, outcome, time.Since(start))

	return err
}
