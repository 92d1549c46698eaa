package autodelete

import (
	"context"

	"github.com/aatumaykin/modbot/internal/logger"
)

// pass - один проход sweeper по каналу: перенос просроченных сообщений
// в очередь и удаление не более BacklogCap записей. Остаток ждёт следующего тика.
func (s *Service) pass(ctx context.Context, st *channelState) {
	if !st.sweepMu.TryLock() {
		s.metrics.recordSkip("locked")
		return
	}
	defer st.sweepMu.Unlock()

	start := s.clock.Now()
	defer func() {
		s.metrics.observeSweep(s.clock.Now().Sub(start))
		w, p := st.sizes()
		s.metrics.setSizes(st.key, w, p)
	}()

	if expired := st.expire(start); expired > 0 {
		s.logger.Debug("expired messages queued",
			logger.Field{Key: "channel", Value: st.key},
			logger.Field{Key: "count", Value: expired})
	}

	if st.coolingDown(start) {
		s.metrics.recordSkip("cooldown")
		return
	}

	batch := st.takePending(s.opts.BacklogCap)
	if len(batch) == 0 {
		return
	}

	caps, err := s.channelCapabilities(ctx, st)
	if err != nil {
		s.logger.Warn("failed to resolve channel capabilities, retrying next pass",
			logger.Field{Key: "channel", Value: st.key},
			logger.Field{Key: "error", Value: err.Error()})
		st.settle(nil, batch)
		return
	}

	report := s.executor.drain(ctx, st.key, batch, caps, st.skip, st.downgradeBulk)
	st.settle(report.Done, report.Retry)

	if report.RateLimited && s.opts.Cooldown > 0 {
		cooldown := max(s.opts.Cooldown, report.RetryAfter)
		st.setCooldown(s.clock.Now().Add(cooldown))
		s.logger.Warn("channel cooling down after rate limit",
			logger.Field{Key: "channel", Value: st.key},
			logger.Field{Key: "cooldown", Value: cooldown.String()},
			logger.Field{Key: "remaining", Value: len(report.Retry)})
	}

	if report.Deleted > 0 || report.Dropped > 0 {
		s.logger.Info("sweep pass finished",
			logger.Field{Key: "channel", Value: st.key},
			logger.Field{Key: "deleted", Value: report.Deleted},
			logger.Field{Key: "dropped", Value: report.Dropped},
			logger.Field{Key: "requeued", Value: len(report.Retry)})
	}
}
