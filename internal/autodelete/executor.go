package autodelete

import (
	"context"
	"errors"
	"time"

	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/retry"
)

// Clock - источник времени и ожидания. Подменяется в тестах.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error { return retry.Sleep(ctx, d) }

// drainReport - итог обработки набора записей.
type drainReport struct {
	Deleted     int
	Dropped     int
	Retry       []*pendingEntry
	Done        []*pendingEntry
	RateLimited bool
	RetryAfter  time.Duration
}

func (r *drainReport) done(entries ...*pendingEntry) {
	r.Done = append(r.Done, entries...)
}

// Executor удаляет сообщения через Sink: пачками, где можно, иначе по одному,
// с адаптивной паузой между одиночными удалениями.
type Executor struct {
	sink        Sink
	delay       *retry.Adaptive
	clock       Clock
	metrics     *Metrics
	logger      *logger.Logger
	maxAttempts int
	cooldown    time.Duration
}

func newExecutor(sink Sink, delay *retry.Adaptive, clock Clock, metrics *Metrics, log *logger.Logger, maxAttempts int, cooldown time.Duration) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		sink:        sink,
		delay:       delay,
		clock:       clock,
		metrics:     metrics,
		logger:      log,
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
	}
}

// Delay возвращает текущую паузу между одиночными удалениями.
func (e *Executor) Delay() time.Duration {
	return e.delay.Delay()
}

// drain удаляет записи: молодые пачками по caps.BulkMaxBatch, остальные по одному.
// skip проверяется непосредственно перед отправкой каждой записи.
func (e *Executor) drain(ctx context.Context, key string, entries []*pendingEntry, caps Capabilities, skip func(*pendingEntry) bool, onUnsupported func()) drainReport {
	var report drainReport
	now := e.clock.Now()

	var bulk, singles []*pendingEntry
	for _, entry := range entries {
		if caps.BulkDelete && entry.msg.Age(now) < caps.BulkMaxAge {
			bulk = append(bulk, entry)
		} else {
			singles = append(singles, entry)
		}
	}

	batchSize := caps.BulkMaxBatch
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(bulk); start += batchSize {
		end := min(start+batchSize, len(bulk))
		fallback, limited := e.deleteBatch(ctx, key, bulk[start:end], skip, &report, onUnsupported)
		if limited {
			report.Retry = append(report.Retry, fallback...)
			report.Retry = append(report.Retry, bulk[end:]...)
			report.Retry = append(report.Retry, singles...)
			return report
		}
		if len(fallback) > 0 {
			if stop := e.deleteSingles(ctx, key, fallback, skip, &report); stop {
				report.Retry = append(report.Retry, bulk[end:]...)
				report.Retry = append(report.Retry, singles...)
				return report
			}
		}
	}

	e.deleteSingles(ctx, key, singles, skip, &report)
	return report
}

// deleteBatch делает один массовый вызов. Возвращает записи, которые нужно
// удалить по одному, и признак rate limit: тогда их нужно отложить.
func (e *Executor) deleteBatch(ctx context.Context, key string, batch []*pendingEntry, skip func(*pendingEntry) bool, report *drainReport, onUnsupported func()) ([]*pendingEntry, bool) {
	live := make([]*pendingEntry, 0, len(batch))
	for _, entry := range batch {
		if skip(entry) {
			report.Dropped++
			report.done(entry)
			continue
		}
		live = append(live, entry)
	}

	switch len(live) {
	case 0:
		return nil, false
	case 1:
		return live, false
	}

	ids := make([]string, len(live))
	for i, entry := range live {
		ids[i] = entry.msg.ID
	}

	err := e.sink.DeleteMessages(ctx, key, ids)
	e.metrics.recordDeletion(platformOf(key), "bulk", err, len(live))
	if err == nil {
		report.Deleted += len(live)
		report.done(live...)
		e.delay.OnSuccess()
		e.metrics.setDelay(e.delay.Delay())
		return nil, false
	}

	fields := []logger.Field{
		{Key: "channel", Value: key},
		{Key: "count", Value: len(live)},
		{Key: "error", Value: err.Error()},
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		e.onRateLimit(key, err, report)
		e.logger.Warn("bulk delete rate limited", fields...)
		return live, true
	case errors.Is(err, ErrTooOldForBulk):
		e.logger.Debug("bulk delete rejected as too old, deleting one by one", fields...)
	case errors.Is(err, ErrBulkUnsupported):
		e.logger.Info("bulk delete unsupported in channel, switching to single deletes", fields...)
		if onUnsupported != nil {
			onUnsupported()
		}
	default:
		e.logger.Warn("bulk delete failed, deleting one by one", fields...)
	}
	return live, false
}

// deleteSingles удаляет записи по одной. Возвращает true, если проход
// нужно прервать; необработанные записи тогда уже лежат в report.Retry.
func (e *Executor) deleteSingles(ctx context.Context, key string, entries []*pendingEntry, skip func(*pendingEntry) bool, report *drainReport) bool {
	first := true
	for i, entry := range entries {
		if skip(entry) {
			report.Dropped++
			report.done(entry)
			continue
		}

		if !first {
			if err := e.clock.Sleep(ctx, e.delay.Delay()); err != nil {
				report.Retry = append(report.Retry, entries[i:]...)
				return true
			}
		}
		first = false

		if ctx.Err() != nil {
			report.Retry = append(report.Retry, entries[i:]...)
			return true
		}

		if stop := e.deleteSingle(ctx, key, entry, report); stop {
			report.Retry = append(report.Retry, entries[i+1:]...)
			return true
		}
	}
	return false
}

// deleteSingle удаляет одно сообщение и раскладывает исход по отчёту.
func (e *Executor) deleteSingle(ctx context.Context, key string, entry *pendingEntry, report *drainReport) bool {
	err := e.sink.DeleteMessage(ctx, key, entry.msg.ID)
	e.metrics.recordDeletion(platformOf(key), "single", err, 1)

	switch {
	case err == nil:
		report.Deleted++
		report.done(entry)
		e.delay.OnSuccess()
		e.metrics.setDelay(e.delay.Delay())
		return false

	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermission):
		e.logger.Debug("message dropped from queue",
			logger.Field{Key: "channel", Value: key},
			logger.Field{Key: "message_id", Value: entry.msg.ID},
			logger.Field{Key: "reason", Value: outcome(err)})
		report.Dropped++
		report.done(entry)
		return false

	case errors.Is(err, ErrRateLimited):
		e.onRateLimit(key, err, report)
		report.Retry = append(report.Retry, entry)
		e.logger.Warn("single delete rate limited",
			logger.Field{Key: "channel", Value: key},
			logger.Field{Key: "delay", Value: e.delay.Delay().String()},
			logger.Field{Key: "retry_after", Value: report.RetryAfter.String()})
		// короткая пауза, чтобы не бить в лимит сразу же
		_ = e.clock.Sleep(ctx, e.delay.Delay())
		return e.cooldown > 0

	default:
		entry.attempts++
		if entry.attempts >= e.maxAttempts {
			e.logger.Error("giving up on message", err,
				logger.Field{Key: "channel", Value: key},
				logger.Field{Key: "message_id", Value: entry.msg.ID},
				logger.Field{Key: "attempts", Value: entry.attempts})
			report.Dropped++
			report.done(entry)
			return false
		}
		e.logger.Warn("single delete failed, will retry next pass",
			logger.Field{Key: "channel", Value: key},
			logger.Field{Key: "message_id", Value: entry.msg.ID},
			logger.Field{Key: "attempts", Value: entry.attempts},
			logger.Field{Key: "error", Value: err.Error()})
		report.Retry = append(report.Retry, entry)
		return false
	}
}

func (e *Executor) onRateLimit(key string, err error, report *drainReport) {
	after := RetryAfter(err)
	e.delay.OnRateLimit(after)
	e.metrics.recordRateLimit(platformOf(key))
	e.metrics.setDelay(e.delay.Delay())
	report.RateLimited = true
	if after > report.RetryAfter {
		report.RetryAfter = after
	}
}

func platformOf(key string) string {
	platform, _, err := SplitChannelKey(key)
	if err != nil {
		return "unknown"
	}
	return platform
}
