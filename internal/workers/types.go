// Package workers provides a worker pool for background task execution.
// Channel sweeps, history bootstraps and admin purges run here so that slow
// platform I/O in one channel never blocks the event loop.
package workers

import (
	"context"
	"errors"
	"time"
)

// Task types used by the auto-delete pipeline.
const (
	TaskTypeSweep     = "sweep"
	TaskTypeBootstrap = "bootstrap"
	TaskTypePurge     = "purge"
)

// Task represents a unit of work to be executed by a worker.
type Task struct {
	ID      string                          // Unique task identifier
	Type    string                          // Task type: sweep, bootstrap or purge
	Key     string                          // Channel key the task works on, for logs
	Run     func(ctx context.Context) error // Work itself
	Context context.Context                 // Task-specific context for cancellation/timeout
}

// Result represents the outcome of a task execution.
type Result struct {
	TaskID   string
	Type     string
	Error    error
	Duration time.Duration
}

// PoolMetrics tracks execution metrics for the worker pool.
type PoolMetrics struct {
	TasksSubmitted uint64
	TasksRejected  uint64
	TasksCompleted uint64
	TasksFailed    uint64
	TotalDuration  time.Duration
}

var (
	// ErrQueueFull возвращается TrySubmit, когда очередь заполнена.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrPoolStopped возвращается при отправке задачи в остановленный пул.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Constants for worker pool configuration
const (
	DefaultPoolSize  = 4
	DefaultQueueSize = 256
)
