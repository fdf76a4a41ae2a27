package intake

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/telemetry"
)

// ProcessFunc handles one claimed file.
type ProcessFunc func(ctx context.Context, ref FileRef)

// Poller drives a lane's scan, claim and dispatch cycle on a fixed period.
type Poller struct {
	lane       string
	dir        string
	scanner    Scanner
	claims     *ClaimSet
	pool       *WorkerPool
	process    ProcessFunc
	maxPerPoll int
	period     time.Duration
	telemetry  *telemetry.Telemetry
	wake       chan struct{}

	mu        sync.Mutex
	lastPoll  time.Time
	lastError error
}

type PollerConfig struct {
	Lane       string
	Dir        string
	Scanner    Scanner
	Claims     *ClaimSet
	Pool       *WorkerPool
	Process    ProcessFunc
	MaxPerPoll int
	Period     time.Duration
	Telemetry  *telemetry.Telemetry
}

func NewPoller(cfg PollerConfig) *Poller {
	claims := cfg.Claims
	if claims == nil {
		claims = NewClaimSet()
	}

	pool := cfg.Pool
	if pool == nil {
		pool = NewWorkerPool(1)
	}

	maxPerPoll := cfg.MaxPerPoll
	if maxPerPoll < 1 {
		maxPerPoll = 1
	}

	return &Poller{
		lane:       cfg.Lane,
		dir:        cfg.Dir,
		scanner:    cfg.Scanner,
		claims:     claims,
		pool:       pool,
		process:    cfg.Process,
		maxPerPoll: maxPerPoll,
		period:     cfg.Period,
		telemetry:  cfg.Telemetry,
		wake:       make(chan struct{}, 1),
	}
}

// Poll runs one cycle: scan, claim at most maxPerPoll new files in scan order
// and submit each to the worker pool. Files beyond the limit stay unclaimed
// for a later cycle. Submission blocks while the pool is saturated.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	var refs []FileRef

	err := p.telemetry.InstrumentScan(ctx, p.lane, func(ctx context.Context) error {
		var err error

		refs, err = p.scanner.Scan(ctx, p.dir)

		return err
	})

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.lastError = nil
	if err != nil {
		p.lastError = &ScanError{Lane: p.lane, Dir: p.dir, Err: err}
	}
	p.mu.Unlock()

	if err != nil {
		return 0, &ScanError{Lane: p.lane, Dir: p.dir, Err: err}
	}

	logger := logctx.LoggerFromContext(ctx)

	// claimed work runs to completion even when the lane is stopping
	workCtx := context.WithoutCancel(ctx)
	dispatched := 0

	for _, ref := range refs {
		if dispatched >= p.maxPerPoll || ctx.Err() != nil {
			break
		}

		if !p.claims.Claim(ref) {
			continue
		}

		dispatched++

		logger.Debug("file claimed", "file_name", ref.Name)

		p.pool.Submit(func() {
			p.process(workCtx, ref)
		})
	}

	p.telemetry.RecordClaims(p.lane, dispatched)

	if dispatched > 0 {
		logger.Debug("poll cycle dispatched files", "dispatched", dispatched, "matched", len(refs))
	}

	return dispatched, nil
}

// Run polls immediately and then every period until ctx is done. Wake
// triggers an extra cycle. Run returns once ctx is done; in-flight files are
// left to the pool.
func (p *Poller) Run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("poller shutdown", "reason", "context_cancelled")

			return
		case <-ticker.C:
			p.cycle(ctx)
		case <-p.wake:
			p.cycle(ctx)
		}
	}
}

// Wake requests an extra poll cycle without waiting for the next tick.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// LastPoll returns when the last cycle ran and its scan error, if any.
func (p *Poller) LastPoll() (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastPoll, p.lastError
}

func (p *Poller) cycle(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("poll cycle panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if _, err := p.Poll(ctx); err != nil {
		logger.Error("poll cycle skipped", "err", err)
	}
}
