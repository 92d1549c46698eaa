package telegram

import (
	"context"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/modbot/internal/logger"
)

const defaultPollTimeout = 30

// LongPollManager handles long polling for Telegram updates.
type LongPollManager struct {
	bot     BotInterface
	handler *UpdateHandler
	timeout int
	logger  *logger.Logger
}

// NewLongPollManager creates a new long poll manager. timeout is the
// getUpdates timeout in seconds.
func NewLongPollManager(bot BotInterface, handler *UpdateHandler, timeout int, logger *logger.Logger) *LongPollManager {
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &LongPollManager{
		bot:     bot,
		handler: handler,
		timeout: timeout,
		logger:  logger,
	}
}

// Run polls until ctx is cancelled or the updates channel closes.
func (lpm *LongPollManager) Run(ctx context.Context) {
	lpm.logger.Info("starting long polling for telegram updates")

	updates, err := lpm.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: lpm.timeout,
		AllowedUpdates: []string{
			"message",
			"channel_post",
		},
	})
	if err != nil {
		lpm.logger.ErrorCtx(ctx, "failed to start long polling", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			lpm.logger.Info("long polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				lpm.logger.Info("updates channel closed")
				return
			}

			if err := lpm.handler.Handle(update); err != nil {
				lpm.logger.ErrorCtx(ctx, "failed to handle update", err,
					logger.Field{Key: "update_id", Value: update.UpdateID})
			}
		}
	}
}
