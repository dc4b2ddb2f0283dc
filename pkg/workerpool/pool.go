// Package workerpool provides a bounded worker pool for best-effort side
// effects that must not add latency to the triggering request.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of deferred work.
type Task struct {
	ID      string
	Run     func(ctx context.Context) error
	Context context.Context
}

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of concurrent workers.
	Workers int
	// QueueSize bounds the task queue; Submit fails when it is full.
	QueueSize int
	// GracefulShutdownTimeout caps how long Stop waits for in-flight tasks.
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for notification fan-out.
func DefaultConfig() Config {
	return Config{
		Workers:                 8,
		QueueSize:               1024,
		GracefulShutdownTimeout: 15 * time.Second,
	}
}

// ErrQueueFull is returned by Submit when the queue is saturated.
var ErrQueueFull = errors.New("task queue is full")

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("pool is shutting down")

// Pool runs submitted tasks on a fixed set of workers. Task failures are
// logged and counted; there is no retry, callers that need stronger
// guarantees should not route through the pool.
type Pool struct {
	config Config
	logger *zap.Logger

	taskChan chan *Task
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	submitted int64
	completed int64
	failed    int64
}

// New creates a pool; Start must be called before Submit.
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = DefaultConfig().GracefulShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:   cfg,
		logger:   logger,
		taskChan: make(chan *Task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return ErrStopped
	default:
	}

	select {
	case p.taskChan <- task:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for workers, bounded by the configured
// shutdown timeout.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.cancel()
		close(p.taskChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("worker pool stopped")
		case <-time.After(p.config.GracefulShutdownTimeout):
			p.logger.Warn("worker pool shutdown timed out")
		}
	})
}

// Stats reports lifetime task counts.
func (p *Pool) Stats() (submitted, completed, failed int64) {
	return atomic.LoadInt64(&p.submitted),
		atomic.LoadInt64(&p.completed),
		atomic.LoadInt64(&p.failed)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		ctx := task.Context
		if ctx == nil {
			ctx = context.Background()
		}

		if err := task.Run(ctx); err != nil {
			atomic.AddInt64(&p.failed, 1)
			p.logger.Warn("task failed",
				zap.String("task_id", task.ID),
				zap.Int("worker_id", id),
				zap.Error(err))
			continue
		}
		atomic.AddInt64(&p.completed, 1)
	}
}
