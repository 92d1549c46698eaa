package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/modbot/internal/logger"
)

func newTestPool(t *testing.T, workers, buffer int) *WorkerPool {
	t.Helper()
	p := NewPool(workers, buffer, logger.Discard())
	t.Cleanup(p.Stop)
	return p
}

func collectResults(p *WorkerPool, n int) (chan Result, *sync.WaitGroup) {
	ch := make(chan Result, n)
	wg := &sync.WaitGroup{}
	wg.Add(n)
	p.OnResult(func(r Result) {
		ch <- r
		wg.Done()
	})
	return ch, wg
}

func TestNewPool_Defaults(t *testing.T) {
	p := newTestPool(t, 0, 0)
	assert.Equal(t, DefaultPoolSize, p.WorkerCount())
	assert.Equal(t, 0, p.QueueSize())
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := newTestPool(t, 3, 10)
	results, wg := collectResults(p, 5)
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		err := p.Submit(context.Background(), Task{
			ID:   "task",
			Type: TaskTypeSweep,
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	wg.Wait()
	close(results)
	for r := range results {
		assert.NoError(t, r.Error)
		assert.Equal(t, TaskTypeSweep, r.Type)
	}
	assert.Equal(t, int32(5), ran.Load())

	m := p.Metrics()
	assert.Equal(t, uint64(5), m.TasksSubmitted)
	assert.Equal(t, uint64(5), m.TasksCompleted)
	assert.Zero(t, m.TasksFailed)
}

func TestWorkerPool_FailedAndPanickingTasks(t *testing.T) {
	p := newTestPool(t, 2, 10)
	results, wg := collectResults(p, 2)
	p.Start()

	boom := errors.New("boom")
	require.NoError(t, p.Submit(context.Background(), Task{ID: "fail", Run: func(ctx context.Context) error { return boom }}))
	require.NoError(t, p.Submit(context.Background(), Task{ID: "panic", Run: func(ctx context.Context) error { panic("bad") }}))

	wg.Wait()
	close(results)

	byID := map[string]error{}
	for r := range results {
		byID[r.TaskID] = r.Error
	}
	assert.ErrorIs(t, byID["fail"], boom)
	require.Error(t, byID["panic"])
	assert.Contains(t, byID["panic"].Error(), "panic during task execution")
	assert.Equal(t, uint64(2), p.Metrics().TasksFailed)
}

func TestWorkerPool_TrySubmitQueueFull(t *testing.T) {
	p := newTestPool(t, 1, 1)

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, p.TrySubmit(Task{ID: "a", Run: noop}))
	assert.ErrorIs(t, p.TrySubmit(Task{ID: "b", Run: noop}), ErrQueueFull)
	assert.Equal(t, uint64(1), p.Metrics().TasksRejected)
}

func TestWorkerPool_SubmitValidation(t *testing.T) {
	p := newTestPool(t, 1, 1)

	assert.Error(t, p.TrySubmit(Task{ID: "no-run"}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Submit(ctx, Task{ID: "fill", Run: func(ctx context.Context) error { return nil }}))
	cancel()
	err := p.Submit(ctx, Task{ID: "blocked", Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPool_StopCancelsInFlightAndRejectsNew(t *testing.T) {
	p := NewPool(1, 4, logger.Discard())
	p.Start()

	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), Task{
		ID: "long",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	<-started

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	noop := func(ctx context.Context) error { return nil }
	assert.ErrorIs(t, p.TrySubmit(Task{ID: "late", Run: noop}), ErrPoolStopped)
	assert.ErrorIs(t, p.Submit(context.Background(), Task{ID: "late", Run: noop}), ErrPoolStopped)

	// повторный Stop безопасен
	assert.NotPanics(t, p.Stop)
}

func TestWorkerPool_TaskContextOverridesPoolContext(t *testing.T) {
	p := newTestPool(t, 1, 1)
	results, wg := collectResults(p, 1)
	p.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Submit(context.Background(), Task{
		ID:      "cancelled",
		Context: ctx,
		Run:     func(ctx context.Context) error { return nil },
	}))

	wg.Wait()
	r := <-results
	assert.ErrorIs(t, r.Error, context.Canceled)
}
