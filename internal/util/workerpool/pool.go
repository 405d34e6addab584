// Package workerpool bounds the goroutines used for network sends.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is a unit of work to be executed.
type Task struct {
	ID string
	Fn func(context.Context) error
}

// WorkerPool manages a bounded pool of goroutines for executing tasks.
type WorkerPool struct {
	name       string
	maxWorkers int
	taskQueue  chan Task
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}

	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
}

// Config holds worker pool configuration.
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New creates and starts a worker pool.
func New(cfg *Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pool := &WorkerPool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		taskQueue:  make(chan Task, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < pool.maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	pool.logger.Info("worker pool started",
		zap.String("name", pool.name),
		zap.Int("max_workers", pool.maxWorkers),
		zap.Int("queue_size", cfg.QueueSize))

	return pool
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.taskQueue:
			if err := task.Fn(ctx); err != nil {
				atomic.AddUint64(&p.failedTasks, 1)
				p.logger.Warn("task failed",
					zap.String("pool", p.name),
					zap.String("task_id", task.ID),
					zap.Error(err))
				continue
			}
			atomic.AddUint64(&p.completedTasks, 1)
		}
	}
}

// TrySubmit enqueues a task without blocking; it reports false when the
// queue is full.
func (p *WorkerPool) TrySubmit(task Task) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		atomic.AddUint64(&p.rejectedTasks, 1)
		return false
	}
}

// Stop terminates the workers. Queued tasks are abandoned.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
	})
}

// Stats returns completed, failed and rejected task counts.
func (p *WorkerPool) Stats() (completed, failed, rejected uint64) {
	return atomic.LoadUint64(&p.completedTasks),
		atomic.LoadUint64(&p.failedTasks),
		atomic.LoadUint64(&p.rejectedTasks)
}
