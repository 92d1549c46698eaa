package autodelete

import (
	"context"
	"errors"
	"slices"

	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/retry"
)

// historySize - сколько сообщений запросить при загрузке канала с лимитом limit.
func historySize(limit uint, minimum, ceiling int) int {
	size := max(2*int(limit), minimum)
	return min(size, ceiling)
}

// bootstrap заполняет окно и очередь канала по его истории.
// Ошибка чтения истории оставляет канал незагруженным: следующий тик повторит попытку.
func (s *Service) bootstrap(ctx context.Context, st *channelState) error {
	st.mu.Lock()
	rule := st.rule
	generation := st.generation
	st.mu.Unlock()

	caps, err := s.channelCapabilities(ctx, st)
	if err != nil {
		s.metrics.recordBootstrap(err)
		return s.bootstrapFailed(st, err)
	}

	if !caps.History {
		// платформа не отдаёт историю: отслеживаем только новые сообщения
		st.seed(generation, nil, s.clock.Now())
		s.metrics.recordBootstrap(nil)
		return nil
	}

	size := historySize(rule.MessageLimit, s.opts.HistoryMin, s.opts.HistoryCeiling)
	history, err := retry.DoWithRetry(ctx, func(ctx context.Context) ([]TrackedMessage, error) {
		return s.sink.FetchHistory(ctx, st.key, size)
	}, retry.Config{
		MaxAttempts: s.opts.MaxAttempts,
		Retryable:   func(err error) bool { return errors.Is(Classify(err), ErrTransport) && ctx.Err() == nil },
		Sleep:       s.retrySleep,
		Logger:      s.logger,
	})
	s.metrics.recordBootstrap(err)
	if err != nil {
		return s.bootstrapFailed(st, err)
	}

	// история приходит новыми вперёд
	tracked := make([]TrackedMessage, 0, len(history))
	for _, m := range history {
		if m.Pinned || m.AuthorIsBot {
			continue
		}
		m.ChannelID = st.key
		tracked = append(tracked, m)
	}
	slices.Reverse(tracked)
	if rule.MessageLimit > 0 && len(tracked) > int(rule.MessageLimit) {
		tracked = tracked[len(tracked)-int(rule.MessageLimit):]
	}

	if !st.seed(generation, tracked, s.clock.Now()) {
		s.logger.Debug("discarding stale bootstrap, rule changed",
			logger.Field{Key: "channel", Value: st.key})
		return nil
	}

	w, p := st.sizes()
	s.metrics.setSizes(st.key, w, p)
	s.logger.Info("channel bootstrapped",
		logger.Field{Key: "channel", Value: st.key},
		logger.Field{Key: "fetched", Value: len(history)},
		logger.Field{Key: "window", Value: w},
		logger.Field{Key: "pending", Value: p})
	return nil
}

func (s *Service) bootstrapFailed(st *channelState, err error) error {
	fields := []logger.Field{
		{Key: "channel", Value: st.key},
		{Key: "error", Value: err.Error()},
	}
	if errors.Is(err, ErrPermission) || errors.Is(err, ErrNotFound) {
		s.logger.Warn("cannot read channel history, will retry next pass", fields...)
	} else {
		s.logger.Error("channel bootstrap failed, will retry next pass", err, logger.Field{Key: "channel", Value: st.key})
	}
	return err
}
