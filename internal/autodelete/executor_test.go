package autodelete

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillQueue(env *testEnv, n int, age time.Duration) {
	for i := 0; i < n; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("m%d", i), age))
	}
	// последнее сообщение остаётся в окне
	env.svc.HandleMessage(env.msg("tail", 0))
}

func TestExecutor_TooOldForBulkFallsBackWithoutRetryingBatch(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.bulkErr = func(ids []string) error {
		return NewPlatformError(ErrTooOldForBulk, "bulk delete", nil)
	}
	fillQueue(env, 4, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	assert.Len(t, env.sink.Bulk(), 1)
	assert.Equal(t, seqIDs("m", 0, 4), env.sink.Singles())
	assert.True(t, env.state(t, testKey).capabilities().BulkDelete, "too-old does not disable bulk")
}

func TestExecutor_BulkUnsupportedDowngradesChannel(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.bulkErr = func(ids []string) error {
		return NewPlatformError(ErrBulkUnsupported, "bulk delete", nil)
	}
	fillQueue(env, 3, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Len(t, env.sink.Bulk(), 1)
	assert.Equal(t, seqIDs("m", 0, 3), env.sink.Singles())
	assert.False(t, env.state(t, testKey).capabilities().BulkDelete)

	env.svc.HandleMessage(env.msg("n1", time.Minute))
	env.svc.HandleMessage(env.msg("n2", 0))
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	assert.Len(t, env.sink.Bulk(), 1, "bulk is not attempted again")
	assert.Equal(t, []string{"m0", "m1", "m2", "tail", "n1"}, env.sink.Singles())
}

func TestExecutor_GenericBulkErrorFallsBackToSingles(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.bulkErr = func(ids []string) error { return errors.New("502 bad gateway") }
	fillQueue(env, 2, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, []string{"m0", "m1"}, env.sink.Singles())
	assert.True(t, env.state(t, testKey).capabilities().BulkDelete)
}

func TestExecutor_NotFoundAndForbiddenAreDropped(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.caps.BulkDelete = false
	env.sink.singleErr = func(id string) error {
		switch id {
		case "m0":
			return NewPlatformError(ErrNotFound, "delete", nil)
		case "m1":
			return NewPlatformError(ErrPermission, "delete", nil)
		}
		return nil
	}
	fillQueue(env, 3, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	assert.Equal(t, []string{"m0", "m1", "m2"}, env.sink.Singles(), "dropped messages are not retried")
	_, pending := env.state(t, testKey).sizes()
	assert.Zero(t, pending)
}

func TestExecutor_TransportErrorsRetriedUpToMaxAttempts(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.caps.BulkDelete = false
	env.sink.singleErr = func(id string) error {
		if id == "m0" {
			return NewPlatformError(ErrTransport, "delete", errors.New("connection reset"))
		}
		return nil
	}
	fillQueue(env, 2, time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	}

	assert.Equal(t, []string{"m0", "m1", "m0", "m0"}, env.sink.Singles())
	_, pending := env.state(t, testKey).sizes()
	assert.Zero(t, pending)
}

func TestExecutor_RateLimitBackoffIsMonotoneAndBounded(t *testing.T) {
	opts := testOptions()
	opts.Cooldown = 0
	env := newTestEnv(t, opts, RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.caps.BulkDelete = false

	limited := 0
	env.sink.singleErr = func(id string) error {
		if limited < 3 {
			limited++
			return NewPlatformError(ErrRateLimited, "delete", nil)
		}
		return nil
	}
	fillQueue(env, 8, time.Hour)

	floor, ceiling := opts.DelayFloor, opts.DelayCeiling
	require.Equal(t, floor, env.svc.executor.Delay())

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	// три ограничения подряд: 100ms -> 200ms -> 400ms -> 800ms, затем успехи
	// уменьшают паузу вдвое до нижней границы
	sleeps := env.clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 200*time.Millisecond, sleeps[0], "short delay after the first rate limit")
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, floor)
		assert.LessOrEqual(t, d, ceiling)
	}
	assert.Equal(t, floor, env.svc.executor.Delay())

	// ограниченные сообщения вернулись в очередь и удаляются следующим проходом
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.ElementsMatch(t, append(seqIDs("m", 0, 8), "m0", "m1", "m2"), env.sink.Singles())
	_, pending := env.state(t, testKey).sizes()
	assert.Zero(t, pending)
}

func TestExecutor_RateLimitDelaySequence(t *testing.T) {
	opts := testOptions()
	opts.Cooldown = 0
	env := newTestEnv(t, opts, RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.caps.BulkDelete = false
	env.sink.singleErr = func(id string) error {
		return NewPlatformError(ErrRateLimited, "delete", nil)
	}
	fillQueue(env, 10, time.Hour)

	var observed []time.Duration
	prev := env.svc.executor.Delay()
	for i := 0; i < 6; i++ {
		require.NoError(t, env.svc.Sweep(context.Background(), testKey))
		cur := env.svc.executor.Delay()
		if prev < opts.DelayCeiling {
			assert.Greater(t, cur, prev, "delay must grow after a rate limit")
		}
		assert.LessOrEqual(t, cur, opts.DelayCeiling)
		observed = append(observed, cur)
		prev = cur
	}
	assert.Equal(t, opts.DelayCeiling, observed[len(observed)-1])

	env.sink.singleErr = nil
	for i := 0; i < 10; i++ {
		require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	}
	assert.Equal(t, opts.DelayFloor, env.svc.executor.Delay())
}

func TestExecutor_RateLimitCooldownPausesChannel(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.sink.caps.BulkDelete = false

	first := true
	env.sink.singleErr = func(id string) error {
		if first {
			first = false
			err := NewPlatformError(ErrRateLimited, "delete", nil)
			err.RetryAfter = 5 * time.Second
			return err
		}
		return nil
	}
	fillQueue(env, 3, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, []string{"m0"}, env.sink.Singles(), "pass stops after rate limit")

	st := env.state(t, testKey)
	assert.Equal(t, []string{"m0", "m1", "m2"}, ids(st.pendingItems()), "order preserved on requeue")

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Len(t, env.sink.Singles(), 1, "channel is cooling down")

	env.clock.Advance(10 * time.Minute)
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, []string{"m0", "m0", "m1", "m2"}, env.sink.Singles())
}

func TestExecutor_BulkRateLimitRequeuesBatch(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	calls := 0
	env.sink.bulkErr = func(ids []string) error {
		calls++
		if calls == 1 {
			return NewPlatformError(ErrRateLimited, "bulk delete", nil)
		}
		return nil
	}
	fillQueue(env, 5, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Empty(t, env.sink.Singles())
	_, pending := env.state(t, testKey).sizes()
	assert.Equal(t, 5, pending)

	env.clock.Advance(11 * time.Minute)
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, [][]string{seqIDs("m", 0, 5), seqIDs("m", 0, 5)}, env.sink.Bulk())
}

func TestExecutor_DeletedOnPlatformWhileQueued(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	fillQueue(env, 3, time.Hour)

	env.svc.HandleDelete(testKey, "m1")
	env.svc.HandleDelete(testKey, "tail")

	st := env.state(t, testKey)
	assert.Empty(t, st.windowItems())
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, [][]string{{"m0", "m2"}}, env.sink.Bulk())
}

func TestExecutor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)

	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.svc.metrics = metrics
	env.svc.executor.metrics = metrics
	fillQueue(env, 3, time.Hour)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.deletions.WithLabelValues("discord", "bulk", "deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.windowSize.WithLabelValues(testKey)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.pendingSize.WithLabelValues(testKey)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.sweepDuration))
}
