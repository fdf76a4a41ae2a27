package intake

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/italolelis/file_poller/internal/config"
	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/telemetry"
)

// Lane is one independent scan, claim, handle and relocate pipeline bound to
// a single file pattern. Lanes share no mutable state.
type Lane struct {
	cfg         config.LaneConfig
	filter      *RegexFilter
	claims      *ClaimSet
	pool        *WorkerPool
	poller      *Poller
	coordinator *Coordinator

	committed          atomic.Int64
	rolledBack         atomic.Int64
	relocationFailures atomic.Int64
}

// LaneStats is a point-in-time view of a lane for the ops API.
type LaneStats struct {
	Name               string    `json:"name"`
	Pattern            string    `json:"pattern"`
	SourceDir          string    `json:"source_dir"`
	PoolSize           int       `json:"pool_size"`
	Claimed            int       `json:"claimed"`
	InFlight           int64     `json:"in_flight"`
	Committed          int64     `json:"committed"`
	RolledBack         int64     `json:"rolled_back"`
	RelocationFailures int64     `json:"relocation_failures"`
	LastPollAt         time.Time `json:"last_poll_at"`
	LastPollError      string    `json:"last_poll_error,omitempty"`
}

type laneOptions struct {
	handler   Handler
	writer    Writer
	claims    *ClaimSet
	pool      *WorkerPool
	telemetry *telemetry.Telemetry
	listeners []OutcomeListener
}

// LaneOption customises a Lane at construction.
type LaneOption func(*laneOptions)

// WithHandler replaces the passthrough handler.
func WithHandler(h Handler) LaneOption {
	return func(o *laneOptions) { o.handler = h }
}

// WithWriter replaces the output file writer.
func WithWriter(w Writer) LaneOption {
	return func(o *laneOptions) { o.writer = w }
}

// WithClaimSet injects the lane's claim set, mostly for tests.
func WithClaimSet(c *ClaimSet) LaneOption {
	return func(o *laneOptions) { o.claims = c }
}

// WithWorkerPool injects the lane's worker pool.
func WithWorkerPool(p *WorkerPool) LaneOption {
	return func(o *laneOptions) { o.pool = p }
}

func WithTelemetry(t *telemetry.Telemetry) LaneOption {
	return func(o *laneOptions) { o.telemetry = t }
}

// WithListener adds an observer for finished files.
func WithListener(l OutcomeListener) LaneOption {
	return func(o *laneOptions) { o.listeners = append(o.listeners, l) }
}

// NewLane wires a lane from cfg. Each call builds a fresh claim set and
// worker pool unless one is injected.
func NewLane(cfg config.LaneConfig, opts ...LaneOption) (*Lane, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o laneOptions
	for _, opt := range opts {
		opt(&o)
	}

	filter, err := NewRegexFilter(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("lane %s: %w", cfg.Name, err)
	}

	if o.writer == nil {
		gen, err := NewFilenameGenerator(cfg.OutputFilenamePrefix, cfg.OutputDateFormat, cfg.OutputFilenameSuffix)
		if err != nil {
			return nil, fmt.Errorf("lane %s: %w", cfg.Name, err)
		}

		o.writer = NewFileWriter(cfg.OutputDir, gen)
	}

	if o.claims == nil {
		o.claims = NewClaimSet()
	}

	if o.pool == nil {
		o.pool = NewWorkerPool(cfg.ThreadPoolSize)
	}

	l := &Lane{
		cfg:    cfg,
		filter: filter,
		claims: o.claims,
		pool:   o.pool,
	}

	listeners := append([]OutcomeListener{OutcomeListenerFunc(l.count)}, o.listeners...)

	l.coordinator = NewCoordinator(CoordinatorConfig{
		Lane:         cfg.Name,
		Handler:      o.handler,
		Writer:       o.writer,
		ProcessedDir: cfg.ProcessedDir,
		FailedDir:    cfg.FailedDir,
		Telemetry:    o.telemetry,
		Listeners:    listeners,
	})

	scanner := NewDirectoryScanner(ScannerOptions{
		Filter:     filter,
		Recursive:  cfg.Recursive,
		AutoCreate: cfg.AutoCreateDirectory,
		Exclude:    []string{cfg.ProcessedDir, cfg.FailedDir, cfg.OutputDir},
	})

	l.poller = NewPoller(PollerConfig{
		Lane:       cfg.Name,
		Dir:        cfg.SourceDir,
		Scanner:    scanner,
		Claims:     l.claims,
		Pool:       l.pool,
		Process:    func(ctx context.Context, ref FileRef) { l.coordinator.Process(ctx, ref) },
		MaxPerPoll: cfg.MaxMessagesPerPoll,
		Period:     cfg.PollPeriod(),
		Telemetry:  o.telemetry,
	})

	return l, nil
}

func (l *Lane) Name() string {
	return l.cfg.Name
}

// Poller exposes the lane's poller so a single cycle can be driven directly.
func (l *Lane) Poller() *Poller {
	return l.poller
}

// Run polls until ctx is done, then waits for dispatched files to finish.
// It only fails when the lane's destination directories cannot be created.
func (l *Lane) Run(ctx context.Context) error {
	ctx, logger := logctx.With(ctx, "lane", l.cfg.Name)

	for _, dir := range []string{l.cfg.ProcessedDir, l.cfg.FailedDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("lane %s: failed to create %s: %w", l.cfg.Name, dir, err)
		}
	}

	logger.Info("lane started",
		"pattern", l.cfg.Pattern,
		"source_dir", l.cfg.SourceDir,
		"processed_dir", l.cfg.ProcessedDir,
		"failed_dir", l.cfg.FailedDir,
		"output_dir", l.cfg.OutputDir,
		"poll_period", l.cfg.PollPeriod().String(),
		"max_per_poll", l.cfg.MaxMessagesPerPoll,
		"pool_size", l.pool.Size(),
	)

	if l.cfg.Watch {
		go func() {
			if err := Watch(ctx, l.cfg.SourceDir, l.filter, l.poller.Wake); err != nil {
				logger.Warn("source directory watch disabled", "err", err)
			}
		}()
	}

	l.poller.Run(ctx)

	logger.Info("waiting for in-flight files", "in_flight", l.pool.InFlight())
	l.pool.Wait()
	logger.Info("lane stopped")

	return nil
}

// RunLanes runs every lane until ctx is done. A lane that fails stops the
// others and its error is returned once they have drained.
func RunLanes(ctx context.Context, lanes ...*Lane) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, lane := range lanes {
		g.Go(func() error {
			if err := lane.Run(gctx); err != nil {
				logctx.LoggerFromContext(ctx).Error("lane failed, stopping all lanes", "lane", lane.Name(), "err", err)

				return err
			}

			return nil
		})
	}

	return g.Wait()
}

func (l *Lane) Stats() LaneStats {
	lastPoll, lastErr := l.poller.LastPoll()

	stats := LaneStats{
		Name:               l.cfg.Name,
		Pattern:            l.cfg.Pattern,
		SourceDir:          l.cfg.SourceDir,
		PoolSize:           l.pool.Size(),
		Claimed:            l.claims.Len(),
		InFlight:           l.pool.InFlight(),
		Committed:          l.committed.Load(),
		RolledBack:         l.rolledBack.Load(),
		RelocationFailures: l.relocationFailures.Load(),
		LastPollAt:         lastPoll,
	}

	if lastErr != nil {
		stats.LastPollError = lastErr.Error()
	}

	return stats
}

func (l *Lane) count(_ context.Context, out Outcome) {
	if out.RelocateErr != nil {
		l.relocationFailures.Add(1)
	}

	if out.Committed() {
		l.committed.Add(1)
	} else {
		l.rolledBack.Add(1)
	}
}
