package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/aatumaykin/modbot/internal/logger"
)

// WorkerPool manages a pool of goroutine workers for concurrent task execution.
type WorkerPool struct {
	taskQueue chan Task
	workers   int
	wg        *taskWaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logger.Logger
	metrics   *PoolMetrics
	onResult  func(Result)
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a new worker pool with the specified configuration.
func NewPool(workers int, bufferSize int, log *logger.Logger) *WorkerPool {
	if workers < 1 {
		workers = DefaultPoolSize
	}
	if bufferSize < 1 {
		bufferSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		taskQueue: make(chan Task, bufferSize),
		workers:   workers,
		wg:        newTaskWaitGroup(),
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.Component("workers"),
		metrics:   &PoolMetrics{},
	}
}

// OnResult регистрирует callback, получающий результат каждой задачи.
// Вызывать до Start.
func (p *WorkerPool) OnResult(fn func(Result)) {
	p.onResult = fn
}

// Start initializes and starts all worker goroutines.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool",
			logger.Field{Key: "workers", Value: p.workers},
			logger.Field{Key: "buffer_size", Value: cap(p.taskQueue)})

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Submit sends a task to the pool, blocking while the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if err := p.validate(task); err != nil {
		return err
	}

	select {
	case p.taskQueue <- task:
		p.incrementSubmitted()
		p.logger.DebugCtx(ctx, "task submitted",
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_type", Value: task.Type})
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit отправляет задачу без блокировки. Тик sweeper не должен
// зависать на переполненной очереди: канал просто будет обработан в следующий раз.
func (p *WorkerPool) TrySubmit(task Task) error {
	if err := p.validate(task); err != nil {
		return err
	}

	select {
	case p.taskQueue <- task:
		p.incrementSubmitted()
		return nil
	default:
		p.incrementRejected()
		return ErrQueueFull
	}
}

func (p *WorkerPool) validate(task Task) error {
	if p.ctx.Err() != nil {
		return ErrPoolStopped
	}
	if task.Run == nil {
		return fmt.Errorf("task %s has no Run function", task.ID)
	}
	return nil
}

// Stop shuts the pool down and waits for in-flight tasks to return.
// Queued tasks that have not started are dropped.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()

		metrics := p.Metrics()
		p.logger.Info("worker pool stopped",
			logger.Field{Key: "tasks_submitted", Value: metrics.TasksSubmitted},
			logger.Field{Key: "tasks_completed", Value: metrics.TasksCompleted},
			logger.Field{Key: "tasks_failed", Value: metrics.TasksFailed},
			logger.Field{Key: "tasks_dropped", Value: len(p.taskQueue)})
	})
}

// WorkerCount returns the number of workers.
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// QueueSize returns the current number of tasks waiting in the queue.
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}

// taskWaitGroup wraps sync.WaitGroup with thread-safe metrics access.
type taskWaitGroup struct {
	sync.RWMutex
	wg sync.WaitGroup
}

func newTaskWaitGroup() *taskWaitGroup {
	return &taskWaitGroup{}
}

func (twg *taskWaitGroup) Add(delta int) {
	twg.wg.Add(delta)
}

func (twg *taskWaitGroup) Done() {
	twg.wg.Done()
}

func (twg *taskWaitGroup) Wait() {
	twg.wg.Wait()
}
