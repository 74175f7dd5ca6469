// Package workerpool wraps ants with a fixed-size pool used to run
// directory ingestions concurrently.
package workerpool

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultSize is the pool size used when none is configured.
const DefaultSize = 4

// Pool executes submitted tasks on a bounded set of goroutines.
type Pool struct {
	pool      *ants.Pool
	logger    *logger.Logger
	submitted atomic.Int64
	completed atomic.Int64
}

// New creates a pool with the given size. size <= 0 falls back to
// DefaultSize. Panics inside tasks are logged, not propagated.
func New(size int, log *logger.Logger) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = logger.L()
	}

	p := &Pool{logger: log}

	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v interface{}) {
			log.Error("worker panic recovered", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Submit schedules a task, blocking while the pool is saturated.
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	if err != nil {
		p.completed.Add(1)
		return fmt.Errorf("failed to submit task: %w", err)
	}
	return nil
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Pending returns how many submitted tasks have not finished yet.
func (p *Pool) Pending() int64 {
	return p.submitted.Load() - p.completed.Load()
}

// Release shuts the pool down immediately.
func (p *Pool) Release() {
	p.pool.Release()
}

// Shutdown waits for in-flight tasks to drain, then releases the pool.
func (p *Pool) Shutdown(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for p.Pending() > 0 {
		if time.Now().After(deadline) {
			p.pool.Release()
			return fmt.Errorf("worker pool shutdown timed out with %d pending tasks", p.Pending())
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.pool.Release()
	return nil
}
