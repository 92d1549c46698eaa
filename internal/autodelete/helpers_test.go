package autodelete

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/workers"
)

const testKey = "discord:100"

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeSink struct {
	mu          sync.Mutex
	caps        Capabilities
	capsErr     error
	history     []TrackedMessage
	historyErr  error
	historyReqs []int
	bulkCalls   [][]string
	singleCalls []string
	bulkErr     func(ids []string) error
	singleErr   func(id string) error
}

func discordCaps() Capabilities {
	return Capabilities{BulkDelete: true, History: true, BulkMaxBatch: 100, BulkMaxAge: 14 * 24 * time.Hour}
}

func newFakeSink() *fakeSink {
	return &fakeSink{caps: discordCaps()}
}

func (f *fakeSink) Capabilities(ctx context.Context, key string) (Capabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps, f.capsErr
}

func (f *fakeSink) FetchHistory(ctx context.Context, key string, limit int) ([]TrackedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyReqs = append(f.historyReqs, limit)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	n := min(limit, len(f.history))
	return append([]TrackedMessage(nil), f.history[:n]...), nil
}

func (f *fakeSink) DeleteMessages(ctx context.Context, key string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls = append(f.bulkCalls, append([]string(nil), ids...))
	if f.bulkErr != nil {
		return f.bulkErr(ids)
	}
	return nil
}

func (f *fakeSink) DeleteMessage(ctx context.Context, key, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleCalls = append(f.singleCalls, id)
	if f.singleErr != nil {
		return f.singleErr(id)
	}
	return nil
}

func (f *fakeSink) Bulk() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.bulkCalls...)
}

func (f *fakeSink) Singles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.singleCalls...)
}

// Deleted возвращает все id, переданные на удаление любым способом.
func (f *fakeSink) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, call := range f.bulkCalls {
		ids = append(ids, call...)
	}
	return append(ids, f.singleCalls...)
}

func testOptions() Options {
	return Options{
		SweepInterval:   time.Second,
		BacklogCap:      1000,
		HistoryMin:      100,
		HistoryCeiling:  1000,
		DelayFloor:      100 * time.Millisecond,
		DelayCeiling:    2 * time.Second,
		DelayDecayAfter: 1,
		Cooldown:        10 * time.Minute,
		MaxAttempts:     3,
	}
}

type testEnv struct {
	svc   *Service
	sink  *fakeSink
	clock *fakeClock
	store *RuleStore
	pool  *workers.WorkerPool
}

func newTestEnv(t *testing.T, opts Options, rules ...RetentionRule) *testEnv {
	t.Helper()

	log := logger.Discard()
	store := NewRuleStore(filepath.Join(t.TempDir(), "autodelete.json"), log)
	for _, r := range rules {
		require.NoError(t, store.Set(r))
	}

	sink := newFakeSink()
	clock := newFakeClock()
	pool := workers.NewPool(2, 16, log)
	t.Cleanup(pool.Stop)

	svc := NewService(store, sink, pool, opts, log,
		WithClock(clock),
		WithRetrySleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))

	return &testEnv{svc: svc, sink: sink, clock: clock, store: store, pool: pool}
}

func (e *testEnv) state(t *testing.T, key string) *channelState {
	t.Helper()
	st, ok := e.svc.registry.get(key)
	require.True(t, ok, "no state for %s", key)
	return st
}

// msg создаёт сообщение канала testKey возрастом age.
func (e *testEnv) msg(id string, age time.Duration) TrackedMessage {
	return TrackedMessage{ID: id, ChannelID: testKey, CreatedAt: e.clock.Now().Add(-age)}
}

func ids(msgs []TrackedMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func seqIDs(prefix string, from, to int) []string {
	var out []string
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}
