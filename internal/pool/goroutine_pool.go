package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
	ErrTaskPanic  = errors.New("task panicked")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// GoroutinePool is a bounded worker pool for blocking inference calls.
// Workers are spawned lazily up to MaxWorkers and exit after IdleTimeout.
type GoroutinePool struct {
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32

	// mu guards closing taskQueue against concurrent sends.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	abandoned atomic.Int64

	idleTimeout  time.Duration
	panicHandler func(any)
	logger       *zap.Logger
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	MaxWorkers   int           `json:"max_workers"`
	QueueSize    int           `json:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	PanicHandler func(any)     `json:"-"`
}

// DefaultGoroutinePoolConfig sizes the pool to the CPU count.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  runtime.NumCPU(),
		QueueSize:   256,
		IdleTimeout: 60 * time.Second,
	}
}

// NewGoroutinePool creates a new goroutine pool. Zero fields take defaults.
func NewGoroutinePool(config GoroutinePoolConfig, logger *zap.Logger) *GoroutinePool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultGoroutinePoolConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.QueueSize < 0 {
		config.QueueSize = def.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}

	p := &GoroutinePool{
		maxWorkers:   config.MaxWorkers,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		idleTimeout:  config.IdleTimeout,
		panicHandler: config.PanicHandler,
		logger:       logger.With(zap.String("component", "inference_pool")),
	}
	return p
}

// MaxWorkers returns the worker limit.
func (p *GoroutinePool) MaxWorkers() int {
	return p.maxWorkers
}

// Submit enqueues a task without waiting for it. It fails with ErrPoolFull
// when the queue is full and no worker can be spawned.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	wrapper := taskWrapper{task: task, ctx: ctx}
	p.ensureWorker()

	select {
	case p.taskQueue <- wrapper:
		return nil
	default:
		if p.trySpawnWorker() {
			select {
			case p.taskQueue <- wrapper:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// SubmitWait enqueues a task and waits for its result. The task runs on a
// context detached from ctx's cancellation: when ctx ends first SubmitWait
// returns ctx.Err() while the task runs to completion and its result is
// discarded.
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	wrapper := taskWrapper{
		task:   task,
		ctx:    context.WithoutCancel(ctx),
		result: make(chan error, 1),
	}
	p.ensureWorker()

	select {
	case p.taskQueue <- wrapper:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		p.rejected.Add(1)
		return ctx.Err()
	}

	select {
	case err := <-wrapper.result:
		return err
	case <-ctx.Done():
		p.abandoned.Add(1)
		return ctx.Err()
	}
}

// Run executes fn on the pool and returns its value, with SubmitWait's
// cancellation semantics.
func Run[T any](ctx context.Context, p *GoroutinePool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)

	err := p.SubmitWait(ctx, func(taskCtx context.Context) error {
		v, err := fn(taskCtx)
		ch <- outcome{val: v, err: err}
		return err
	})
	if err != nil {
		select {
		case o := <-ch:
			if errors.Is(err, o.err) {
				return o.val, o.err
			}
		default:
		}
		return zero, err
	}
	o := <-ch
	return o.val, o.err
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case wrapper, ok := <-p.taskQueue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			err := p.executeTask(wrapper)
			p.activeCount.Add(-1)

			if wrapper.result != nil {
				wrapper.result <- err
			}

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}

			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// 空闲超时，保留至少一个 worker
			if p.workerCount.Load() > 1 {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()

	return wrapper.task(wrapper.ctx)
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (p *GoroutinePool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("inference pool closed",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()))
}

// Healthy reports ErrPoolClosed once Close has been called.
func (p *GoroutinePool) Healthy(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	return nil
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Abandoned: p.abandoned.Load(),
	}
}

// GoroutinePoolStats contains pool statistics.
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Abandoned int64 `json:"abandoned"`
}
