package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/modbot/internal/logger"
)

// worker is the main worker goroutine that processes tasks from the queue.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugCtx(p.ctx, "worker started",
		logger.Field{Key: "worker_id", Value: id})

	for {
		select {
		case <-p.ctx.Done():
			p.logger.DebugCtx(p.ctx, "worker stopping",
				logger.Field{Key: "worker_id", Value: id})
			return
		case task := <-p.taskQueue:
			p.processTask(id, task)
		}
	}
}

// processTask handles a single task execution with metrics and error handling.
func (p *WorkerPool) processTask(workerID int, task Task) {
	startTime := time.Now()

	execCtx := p.ctx
	if task.Context != nil {
		execCtx = task.Context
	}

	err := p.execute(execCtx, task)
	result := Result{
		TaskID:   task.ID,
		Type:     task.Type,
		Error:    err,
		Duration: time.Since(startTime),
	}

	if result.Error != nil {
		p.incrementFailed()
		p.logger.WarnCtx(execCtx, "task failed",
			logger.Field{Key: "worker_id", Value: workerID},
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_type", Value: task.Type},
			logger.Field{Key: "channel", Value: task.Key},
			logger.Field{Key: "error", Value: result.Error.Error()})
	} else {
		p.incrementCompleted()
	}
	p.recordDuration(result.Duration)

	if p.onResult != nil {
		p.onResult(result)
	}

	p.logger.DebugCtx(execCtx, "task processed",
		logger.Field{Key: "worker_id", Value: workerID},
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "duration_ms", Value: result.Duration.Milliseconds()})
}

// execute запускает задачу, превращая панику в ошибку: фоновая задача
// не должна завершать процесс.
func (p *WorkerPool) execute(ctx context.Context, task Task) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during task execution: %v", r)
			p.logger.ErrorCtx(ctx, "task panic recovered", err,
				logger.Field{Key: "task_id", Value: task.ID})
		}
	}()

	return task.Run(ctx)
}
