package autodelete

import (
	"context"
	"errors"
	"fmt"

	"github.com/aatumaykin/modbot/internal/logger"
)

// ErrHistoryUnavailable - платформа не даёт читать историю канала.
var ErrHistoryUnavailable = errors.New("channel history is not available on this platform")

// Clear удаляет n последних незакреплённых сообщений канала,
// пачками, где это разрешено. Возвращает число удалённых.
func (s *Service) Clear(ctx context.Context, key string, n int) (int, error) {
	key, err := NormalizeChannelKey(key)
	if err != nil {
		return 0, err
	}

	msgs, caps, err := s.purgeCandidates(ctx, key, n)
	if err != nil {
		return 0, err
	}

	report := s.executor.drain(ctx, key, entriesOf(msgs), caps, func(*pendingEntry) bool { return false }, nil)
	s.forgetPurged(key, report.Done)
	s.logPurge("clear", key, report)
	return report.Deleted, rateLimitErr(report)
}

// ClearOld удаляет n самых старых незакреплённых сообщений среди последних
// scan сообщений канала, по одному, от старых к новым.
func (s *Service) ClearOld(ctx context.Context, key string, n, scan int) (int, error) {
	key, err := NormalizeChannelKey(key)
	if err != nil {
		return 0, err
	}
	if scan < n {
		scan = n
	}

	msgs, caps, err := s.purgeCandidates(ctx, key, scan)
	if err != nil {
		return 0, err
	}
	// msgs идут от старых к новым
	if len(msgs) > n {
		msgs = msgs[:n]
	}

	caps.BulkDelete = false
	report := s.executor.drain(ctx, key, entriesOf(msgs), caps, func(*pendingEntry) bool { return false }, nil)
	s.forgetPurged(key, report.Done)
	s.logPurge("clearold", key, report)
	return report.Deleted, rateLimitErr(report)
}

// purgeCandidates читает историю канала и возвращает незакреплённые
// сообщения от старых к новым.
func (s *Service) purgeCandidates(ctx context.Context, key string, limit int) ([]TrackedMessage, Capabilities, error) {
	if limit < 1 {
		return nil, Capabilities{}, fmt.Errorf("count must be positive, got %d", limit)
	}

	caps, err := s.sink.Capabilities(ctx, key)
	if err != nil {
		return nil, Capabilities{}, err
	}
	if !caps.History {
		return nil, caps, ErrHistoryUnavailable
	}

	history, err := s.sink.FetchHistory(ctx, key, limit)
	if err != nil {
		return nil, caps, fmt.Errorf("failed to fetch history: %w", err)
	}

	msgs := make([]TrackedMessage, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Pinned {
			continue
		}
		msgs = append(msgs, history[i])
	}
	return msgs, caps, nil
}

// forgetPurged убирает удалённые вручную сообщения из окна и очереди канала.
func (s *Service) forgetPurged(key string, done []*pendingEntry) {
	st, ok := s.registry.get(key)
	if !ok {
		return
	}
	for _, entry := range done {
		st.forget(entry.msg.ID)
	}
	w, p := st.sizes()
	s.metrics.setSizes(key, w, p)
}

func (s *Service) logPurge(command, key string, report drainReport) {
	s.logger.Info("purge finished",
		logger.Field{Key: "command", Value: command},
		logger.Field{Key: "channel", Value: key},
		logger.Field{Key: "deleted", Value: report.Deleted},
		logger.Field{Key: "dropped", Value: report.Dropped},
		logger.Field{Key: "not_processed", Value: len(report.Retry)})
}

func rateLimitErr(report drainReport) error {
	if report.RateLimited && len(report.Retry) > 0 {
		return &PlatformError{
			Kind:       ErrRateLimited,
			Op:         "purge",
			RetryAfter: report.RetryAfter,
			Err:        fmt.Errorf("%d messages left", len(report.Retry)),
		}
	}
	return nil
}

func entriesOf(msgs []TrackedMessage) []*pendingEntry {
	entries := make([]*pendingEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = &pendingEntry{msg: m}
	}
	return entries
}
