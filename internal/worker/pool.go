// Package worker runs fire-and-forget background tasks on a bounded set of
// goroutines. Task failures and panics are logged and handed to an error
// handler; they never reach the submitter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkers is the number of goroutines used when none is configured.
const DefaultWorkers = 4

var (
	// ErrClosed is returned by Submit once Wait has drained the pool.
	ErrClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned by Submit when a queue cap is set and reached.
	ErrQueueFull = errors.New("worker queue full")
)

// TaskFunc is a unit of background work.
type TaskFunc func(ctx context.Context) error

// ErrorHandler receives the name and error of every failed task.
type ErrorHandler func(task string, err error)

type task struct {
	name string
	fn   TaskFunc
}

// Stats counts tasks by outcome.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
}

// Pool runs tasks on a fixed number of workers. Submit never blocks: the
// queue is unbounded unless WithQueueSize sets a cap.
//
// Tasks may submit follow-up tasks. Wait keeps accepting them until nothing
// is queued or running, and only then closes the pool.
type Pool struct {
	name     string
	ctx      context.Context
	workers  *pool.Pool
	onError  ErrorHandler
	maxQueue int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []task
	pending  int // queued plus running
	draining bool
	closed   bool
	waitOnce sync.Once

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// Option configures a Pool.
type Option func(*config)

type config struct {
	queueSize int
	onError   ErrorHandler
}

// WithQueueSize caps how many tasks may wait for a worker. Zero or less
// leaves the queue unbounded.
func WithQueueSize(n int) Option {
	return func(c *config) { c.queueSize = n }
}

// WithErrorHandler registers a handler for failed tasks.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) { c.onError = h }
}

// New starts a pool with the given number of workers. Tasks run with ctx; the
// pool does not cancel it.
func New(ctx context.Context, name string, workers int, opts ...Option) *Pool {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	p := &Pool{
		name:     name,
		ctx:      ctx,
		workers:  pool.New().WithMaxGoroutines(workers),
		onError:  cfg.onError,
		maxQueue: max(cfg.queueSize, 0),
	}
	p.cond = sync.NewCond(&p.mu)
	for range workers {
		p.workers.Go(p.loop)
	}

	slog.Debug("Worker pool started", "pool", name, "workers", workers, "queue_cap", p.maxQueue)
	return p
}

// Submit enqueues fn. It returns ErrClosed once the pool has drained and
// ErrQueueFull when a cap is configured and reached.
func (p *Pool) Submit(name string, fn TaskFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.maxQueue > 0 && len(p.queue) >= p.maxQueue {
		return fmt.Errorf("%w: %s", ErrQueueFull, name)
	}

	p.queue = append(p.queue, task{name: name, fn: fn})
	p.pending++
	p.submitted.Add(1)
	p.cond.Signal()
	return nil
}

// Wait blocks until every task, including tasks submitted by running tasks,
// has finished, then closes the pool. Calling it more than once is safe.
func (p *Pool) Wait() {
	p.mu.Lock()
	p.draining = true
	p.closeIfIdle()
	p.mu.Unlock()

	// conc pools must only be waited on once.
	p.waitOnce.Do(p.workers.Wait)
}

// Stats returns the task counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

// closeIfIdle must be called with mu held.
func (p *Pool) closeIfIdle() {
	if p.draining && p.pending == 0 && !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
}

func (p *Pool) next() (task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return task{}, false
	}
	t := p.queue[0]
	p.queue[0] = task{}
	p.queue = p.queue[1:]
	return t, true
}

func (p *Pool) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending--
	p.closeIfIdle()
}

func (p *Pool) loop() {
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.run(t)
		p.finish()
	}
}

func (p *Pool) run(t task) {
	var (
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { err = t.fn(p.ctx) })
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("task panicked: %w", r.AsError())
	}

	if err == nil {
		p.succeeded.Add(1)
		return
	}

	p.failed.Add(1)
	slog.Warn("Background task failed", "pool", p.name, "task", t.name, "error", err)
	if p.onError != nil {
		p.onError(t.name, err)
	}
}
