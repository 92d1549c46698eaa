package autodelete

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_WindowAndQueueSizes(t *testing.T) {
	const limit = 5

	for _, n := range []int{0, 1, limit, limit + 1, 12, 40} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: limit})

			for i := 0; i < n; i++ {
				env.svc.HandleMessage(env.msg(fmt.Sprintf("m%d", i), time.Duration(n-i)*time.Second))
			}

			st := env.state(t, testKey)
			window, pending := st.sizes()
			assert.Equal(t, min(n, limit), window)
			assert.Equal(t, max(0, n-limit), pending)
			assert.Equal(t, seqIDs("m", 0, max(0, n-limit)), nilIfEmpty(ids(st.pendingItems())), "queued oldest first")
			assert.Equal(t, seqIDs("m", max(0, n-limit), n), nilIfEmpty(ids(st.windowItems())))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestIngest_PinnedAndBotMessagesNeverTracked(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 2, MaxAgeSeconds: 60})

	for i := 0; i < 10; i++ {
		m := env.msg(fmt.Sprintf("m%d", i), time.Duration(100-i)*time.Second)
		switch i % 3 {
		case 0:
			m.Pinned = true
		case 1:
			m.AuthorIsBot = true
		}
		env.svc.HandleMessage(m)
	}

	st := env.state(t, testKey)
	env.clock.Advance(time.Hour)
	st.expire(env.clock.Now())

	tracked := append(ids(st.windowItems()), ids(st.pendingItems())...)
	assert.ElementsMatch(t, []string{"m2", "m5", "m8"}, tracked)
}

func TestIngest_IgnoresChannelsWithoutRule(t *testing.T) {
	env := newTestEnv(t, testOptions())

	env.svc.HandleMessage(env.msg("m1", 0))

	_, ok := env.svc.registry.get(testKey)
	assert.False(t, ok)
}

func TestSweep_PinnedAfterQueueIsSkipped(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 5})

	for i := 0; i < 8; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("m%d", i), time.Minute))
	}
	st := env.state(t, testKey)
	require.Equal(t, []string{"m0", "m1", "m2"}, ids(st.pendingItems()))

	env.svc.HandlePinUpdate(testKey, "m1", true)
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	assert.Equal(t, [][]string{{"m0", "m2"}}, env.sink.Bulk())
	assert.NotContains(t, env.sink.Deleted(), "m1")
	_, pending := st.sizes()
	assert.Zero(t, pending)
}

func TestSweep_PinInWindowRemovesFromTracking(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 3})

	for i := 0; i < 3; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("m%d", i), time.Minute))
	}
	env.svc.HandlePinUpdate(testKey, "m0", true)
	env.svc.HandleMessage(env.msg("m3", 0))

	st := env.state(t, testKey)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(st.windowItems()))
	assert.Empty(t, st.pendingItems())
}

func TestSweep_EmptyQueueIsNoOp(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 10, MaxAgeSeconds: 3600})
	env.svc.HandleMessage(env.msg("fresh", time.Second))

	for i := 0; i < 3; i++ {
		require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	}

	assert.Empty(t, env.sink.Bulk())
	assert.Empty(t, env.sink.Singles())
}

func TestSweep_AgeExpiryRegardlessOfLimit(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 100, MaxAgeSeconds: 60})

	env.svc.HandleMessage(env.msg("old", 61*time.Second))
	env.svc.HandleMessage(env.msg("edge", 60*time.Second))
	env.svc.HandleMessage(env.msg("young", 10*time.Second))

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	st := env.state(t, testKey)
	assert.Equal(t, []string{"edge", "young"}, ids(st.windowItems()))
	assert.Equal(t, []string{"old"}, env.sink.Deleted())

	env.clock.Advance(time.Second)
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, []string{"young"}, ids(st.windowItems()))
	assert.Equal(t, []string{"old", "edge"}, env.sink.Deleted())
}

func TestSweep_AgeOnlyRule(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MaxAgeSeconds: 30})

	for i := 0; i < 20; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("m%d", i), time.Duration(40-i)*time.Second))
	}
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	// m0..m9 старше 30 секунд
	assert.ElementsMatch(t, seqIDs("m", 0, 10), env.sink.Deleted())
	assert.Len(t, env.state(t, testKey).windowItems(), 10)
}

func TestSweep_BulkSinglePartition(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})

	for i := 0; i < 3; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("old%d", i), 15*24*time.Hour))
	}
	for i := 0; i < 250; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("young%d", i), time.Hour))
	}
	env.svc.HandleMessage(env.msg("keep", 0))

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))

	bulk := env.sink.Bulk()
	require.Len(t, bulk, 3)
	var bulkIDs []string
	for _, call := range bulk {
		assert.LessOrEqual(t, len(call), 100)
		bulkIDs = append(bulkIDs, call...)
	}
	assert.Equal(t, seqIDs("young", 0, 250), bulkIDs)
	assert.Equal(t, []string{"old0", "old1", "old2"}, env.sink.Singles())
	assert.Equal(t, []string{"keep"}, ids(env.state(t, testKey).windowItems()))
}

func TestSweep_BacklogCapLeavesRemainderQueued(t *testing.T) {
	opts := testOptions()
	opts.BacklogCap = 10
	env := newTestEnv(t, opts, RetentionRule{ChannelID: testKey, MessageLimit: 1})

	for i := 0; i < 26; i++ {
		env.svc.HandleMessage(env.msg(fmt.Sprintf("m%d", i), time.Minute))
	}

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, seqIDs("m", 0, 10), env.sink.Deleted())
	_, pending := env.state(t, testKey).sizes()
	assert.Equal(t, 15, pending)

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, seqIDs("m", 0, 25), env.sink.Deleted())
}

func TestSweep_LockedChannelIsSkipped(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 1})
	env.svc.HandleMessage(env.msg("a", time.Minute))
	env.svc.HandleMessage(env.msg("b", 0))

	st := env.state(t, testKey)
	st.sweepMu.Lock()
	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	st.sweepMu.Unlock()

	assert.Empty(t, env.sink.Deleted())
	_, pending := st.sizes()
	assert.Equal(t, 1, pending)
}

func TestBootstrap_RestartRecovery(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 5, MaxAgeSeconds: 3600})

	now := env.clock.Now()
	at := func(id string, secondsAgo int) TrackedMessage {
		return TrackedMessage{ID: id, CreatedAt: now.Add(-time.Duration(secondsAgo) * time.Second)}
	}
	pinned := at("pinned", 200)
	pinned.Pinned = true
	bot := at("bot", 150)
	bot.AuthorIsBot = true

	// история новыми вперёд
	env.sink.history = []TrackedMessage{
		at("t-10", 10),
		bot,
		at("t-1000", 1000),
		pinned,
		at("t-3000", 3000),
		at("t-3900", 3900),
		at("t-4000", 4000),
		at("t-4500", 4500),
		at("t-4800", 4800),
		at("t-5000", 5000),
	}

	require.NoError(t, env.svc.Bootstrap(context.Background(), testKey))

	st := env.state(t, testKey)
	assert.Equal(t, []int{100}, env.sink.historyReqs)
	assert.Equal(t, []string{"t-4000", "t-3900"}, ids(st.pendingItems()))
	assert.Equal(t, []string{"t-3000", "t-1000", "t-10"}, ids(st.windowItems()))
	for _, m := range st.pendingItems() {
		assert.Equal(t, testKey, m.ChannelID)
	}

	require.NoError(t, env.svc.Sweep(context.Background(), testKey))
	assert.Equal(t, [][]string{{"t-4000", "t-3900"}}, env.sink.Bulk())
}

func TestBootstrap_HistorySize(t *testing.T) {
	assert.Equal(t, 100, historySize(5, 100, 1000))
	assert.Equal(t, 100, historySize(0, 100, 1000))
	assert.Equal(t, 400, historySize(200, 100, 1000))
	assert.Equal(t, 1000, historySize(800, 100, 1000))
}

func TestBootstrap_FailureRetriedNextPass(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 2})
	env.sink.historyErr = NewPlatformError(ErrPermission, "fetch history", nil)

	err := env.svc.Bootstrap(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrPermission)
	assert.Len(t, env.sink.historyReqs, 1, "permission errors are not retried within one bootstrap")

	st := env.state(t, testKey)
	assert.False(t, st.bootstrapped)

	env.sink.historyErr = nil
	env.sink.history = []TrackedMessage{env.msg("b", time.Second), env.msg("a", 2*time.Second)}
	require.NoError(t, env.svc.Bootstrap(context.Background(), testKey))
	assert.True(t, st.bootstrapped)
	assert.Equal(t, []string{"a", "b"}, ids(st.windowItems()))
}

func TestBootstrap_TransportErrorsAreRetried(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 2})
	env.sink.historyErr = NewPlatformError(ErrTransport, "fetch history", fmt.Errorf("connection reset"))

	err := env.svc.Bootstrap(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Len(t, env.sink.historyReqs, 3)
}

func TestBootstrap_MergesLiveMessages(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 3})
	env.svc.HandleMessage(env.msg("live", 0))

	env.sink.history = []TrackedMessage{
		env.msg("live", 0),
		env.msg("h3", 3*time.Second),
		env.msg("h2", 4*time.Second),
		env.msg("h1", 5*time.Second),
	}
	require.NoError(t, env.svc.Bootstrap(context.Background(), testKey))

	st := env.state(t, testKey)
	assert.Equal(t, []string{"h2", "h3", "live"}, ids(st.windowItems()))
	assert.Empty(t, st.pendingItems())
}

func TestBootstrap_NoHistoryCapability(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 3})
	env.sink.caps = Capabilities{BulkDelete: true, BulkMaxBatch: 100, BulkMaxAge: 48 * time.Hour}

	require.NoError(t, env.svc.Bootstrap(context.Background(), testKey))
	assert.Empty(t, env.sink.historyReqs)
	assert.True(t, env.state(t, testKey).bootstrapped)
}

func TestBootstrap_StaleResultDiscarded(t *testing.T) {
	env := newTestEnv(t, testOptions(), RetentionRule{ChannelID: testKey, MessageLimit: 3})
	st := env.state(t, testKey)

	st.mu.Lock()
	gen := st.generation
	st.mu.Unlock()

	require.NoError(t, env.svc.SetRule(RetentionRule{ChannelID: testKey, MessageLimit: 1}))
	assert.False(t, st.seed(gen, []TrackedMessage{env.msg("x", 0)}, env.clock.Now()))
	assert.Empty(t, st.windowItems())
}
