package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter

	// RED Metrics (Rate, Errors, Duration) for the ops server
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Intake metrics, all keyed by lane
	pollCyclesTotal        metric.Int64Counter
	scanDuration           metric.Float64Histogram
	filesClaimedTotal      metric.Int64Counter
	filesProcessedTotal    metric.Int64Counter
	fileProcessingDuration metric.Float64Histogram
	filesInFlight          metric.Int64UpDownCounter
	relocationErrorsTotal  metric.Int64Counter
	dbOperationsTotal      metric.Int64Counter
	dbOperationDuration    metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint enables a push exporter next to the Prometheus endpoint.
	OTLPEndpoint string
	// PushInterval is how often metrics are pushed to OTLPEndpoint.
	PushInterval time.Duration
}

// New creates a new telemetry instance. A disabled config yields a Telemetry
// whose recording methods are no-ops.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		pushExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		interval := cfg.PushInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(pushExporter, sdkmetric.WithInterval(interval)),
		))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	// Spans are not exported; they exist so logs carry trace and span ids.
	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)

	if err := otelruntime.Start(otelruntime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("")
	}

	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordPollCycle records one scan of a lane's source directory.
func (t *Telemetry) RecordPollCycle(lane, status string, duration time.Duration) {
	if t == nil || t.pollCyclesTotal == nil {
		return
	}

	t.pollCyclesTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("lane", lane), attribute.String("status", status)),
	)
	t.scanDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(attribute.String("lane", lane)),
	)
}

// RecordClaims records files claimed by a lane in one cycle.
func (t *Telemetry) RecordClaims(lane string, n int) {
	if t == nil || t.filesClaimedTotal == nil || n == 0 {
		return
	}

	t.filesClaimedTotal.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("lane", lane)),
	)
}

// RecordFileOutcome records how handling of one file ended.
func (t *Telemetry) RecordFileOutcome(lane, outcome string, duration time.Duration) {
	if t == nil || t.filesProcessedTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("lane", lane), attribute.String("outcome", outcome))

	t.filesProcessedTotal.Add(context.Background(), 1, attrs)
	t.fileProcessingDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// IncrementFilesInFlight increments the files being handled by a lane.
func (t *Telemetry) IncrementFilesInFlight(lane string) {
	if t != nil && t.filesInFlight != nil {
		t.filesInFlight.Add(context.Background(), 1, metric.WithAttributes(attribute.String("lane", lane)))
	}
}

// DecrementFilesInFlight decrements the files being handled by a lane.
func (t *Telemetry) DecrementFilesInFlight(lane string) {
	if t != nil && t.filesInFlight != nil {
		t.filesInFlight.Add(context.Background(), -1, metric.WithAttributes(attribute.String("lane", lane)))
	}
}

// RecordRelocationError records a failed move to the processed or failed dir.
func (t *Telemetry) RecordRelocationError(lane string) {
	if t != nil && t.relocationErrorsTotal != nil {
		t.relocationErrorsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("lane", lane)))
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(context.Background(), 1, attrs)
	t.dbOperationDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t == nil || t.systemErrors == nil {
		return
	}

	t.systemErrors.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		),
	)
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeIntakeMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeIntakeMetrics() error {
	var err error

	t.pollCyclesTotal, err = t.meter.Int64Counter(
		"poll_cycles_total",
		metric.WithDescription("Total number of poll cycles per lane"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll_cycles_total counter: %w", err)
	}

	t.scanDuration, err = t.meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Source directory scan duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create scan_duration histogram: %w", err)
	}

	t.filesClaimedTotal, err = t.meter.Int64Counter(
		"files_claimed_total",
		metric.WithDescription("Total number of files claimed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create files_claimed_total counter: %w", err)
	}

	t.filesProcessedTotal, err = t.meter.Int64Counter(
		"files_processed_total",
		metric.WithDescription("Total number of files handled, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create files_processed_total counter: %w", err)
	}

	t.fileProcessingDuration, err = t.meter.Float64Histogram(
		"file_processing_duration_seconds",
		metric.WithDescription("Time from dispatch to relocation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create file_processing_duration histogram: %w", err)
	}

	t.filesInFlight, err = t.meter.Int64UpDownCounter(
		"files_in_flight",
		metric.WithDescription("Number of files currently being handled"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create files_in_flight counter: %w", err)
	}

	t.relocationErrorsTotal, err = t.meter.Int64Counter(
		"relocation_errors_total",
		metric.WithDescription("Total number of failed moves out of the source directory"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create relocation_errors_total counter: %w", err)
	}

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics records uptime periodically. Memory and goroutine
// metrics come from the runtime instrumentation.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.systemUptime.Record(context.Background(), time.Since(startTime).Seconds())
		}
	}
}
