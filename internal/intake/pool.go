package intake

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs tasks on at most size goroutines. Submit blocks while the
// pool is saturated, which is what throttles a lane's poll loop.
type WorkerPool struct {
	group    errgroup.Group
	size     int
	inFlight atomic.Int64
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}

	p := &WorkerPool{size: size}
	p.group.SetLimit(size)

	return p
}

// Submit schedules fn, waiting for a free worker.
func (p *WorkerPool) Submit(fn func()) {
	p.group.Go(func() error {
		p.inFlight.Add(1)
		defer p.inFlight.Add(-1)

		fn()

		return nil
	})
}

// Wait blocks until every submitted task has returned.
func (p *WorkerPool) Wait() {
	_ = p.group.Wait()
}

func (p *WorkerPool) Size() int {
	return p.size
}

// InFlight is the number of tasks currently running.
func (p *WorkerPool) InFlight() int64 {
	return p.inFlight.Load()
}
