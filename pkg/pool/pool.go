// Package pool runs CPU-bound jobs on a fixed set of worker goroutines.
//
// Submit never blocks the caller on job execution: it queues the job and
// returns a [Task] whose result is delivered exactly once through a one-slot
// channel. Request handlers await the task with their own context, so a
// client going away does not stall a worker.
//
//	p := pool.New(0, func(ctx context.Context, opts transform.Options) (*transform.Result, error) {
//	    return engine.Transform(ctx, opts)
//	})
//	defer p.Close()
//	task, err := p.Submit(opts)
//	res, err := task.Await(ctx)
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/observability"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool: closed")

// ErrTaskConsumed is returned when a task's result was already taken.
var ErrTaskConsumed = errors.New("pool: task result already consumed")

// Func processes one job.
type Func[J, R any] func(ctx context.Context, job J) (R, error)

type queued[J, R any] struct {
	task  *Task[R]
	input J
}

// Pool is a fixed-size worker pool.
type Pool[J, R any] struct {
	run    Func[J, R]
	jobs   chan queued[J, R]
	logger *log.Logger

	// mu guards closed; Submit holds the read side while sending so Close
	// never closes jobs under a pending send.
	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	size   int
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	queue  int
	logger *log.Logger
}

// WithQueueSize sets the number of jobs that may wait for a worker before
// Submit blocks. Defaults to four per worker.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queue = n }
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New starts size workers. size <= 0 means one per CPU.
func New[J, R any](size int, run Func[J, R], opts ...Option) *Pool[J, R] {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	o := options{queue: size * 4, logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[J, R]{
		run:    run,
		jobs:   make(chan queued[J, R], o.queue),
		logger: o.logger,
		ctx:    ctx,
		cancel: cancel,
		size:   size,
	}
	p.wg.Add(size)
	for range size {
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool[J, R]) Size() int { return p.size }

// Submit queues job and returns its task. It blocks only while the queue is
// full.
func (p *Pool[J, R]) Submit(job J) (*Task[R], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	t := newTask[R]()
	observability.Pool().OnSubmit(t.id)
	p.jobs <- queued[J, R]{task: t, input: job}
	return t, nil
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// workers to exit.
func (p *Pool[J, R]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}

func (p *Pool[J, R]) worker() {
	defer p.wg.Done()
	for q := range p.jobs {
		p.execute(q.task, q.input)
	}
}

func (p *Pool[J, R]) execute(t *Task[R], job J) {
	start := time.Now()
	observability.Pool().OnStart(t.id, start.Sub(t.submitted))

	var (
		res R
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("transform worker panic", "task", t.id, "panic", r, "stack", string(debug.Stack()))
				err = errs.Wrap(errs.ErrCodeInternal, fmt.Errorf("panic: %v", r), "task %s failed", t.id)
			}
		}()
		res, err = p.run(p.ctx, job)
	}()

	observability.Pool().OnComplete(t.id, time.Since(start), err)
	t.complete(res, err)
}
