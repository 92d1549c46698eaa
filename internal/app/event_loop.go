package app

import (
	"context"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/logger"
)

// StartMessageProcessing starts the single event loop. Platform I/O never
// happens here: commands and the pipeline hand slow work to the worker pool.
func (a *App) StartMessageProcessing(ctx context.Context) error {
	inboundCh := a.messageBus.SubscribeInbound(ctx)

	a.loopWG.Add(1)
	go func() {
		defer a.loopWG.Done()
		a.runEventLoop(ctx, inboundCh)
	}()

	return nil
}

func (a *App) runEventLoop(ctx context.Context, inboundCh <-chan bus.InboundMessage) {
	a.logger.Info("Message processing started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Message processing stopped")
			return
		case msg, ok := <-inboundCh:
			if !ok {
				a.logger.Info("Inbound channel closed")
				return
			}
			a.processMessage(ctx, msg)
		}
	}
}

// processMessage routes one message event. Command messages are tracked like
// any other message so that retention covers them too.
func (a *App) processMessage(ctx context.Context, msg bus.InboundMessage) {
	key := msg.Key()

	switch msg.Kind {
	case bus.EventMessageCreated:
		if handled, err := a.commands.HandleMessage(ctx, msg); err != nil {
			a.logger.ErrorCtx(ctx, "Failed to handle command", err,
				logger.Field{Key: "channel", Value: key},
				logger.Field{Key: "user_id", Value: msg.UserID})
		} else if handled {
			a.logger.DebugCtx(ctx, "Command handled",
				logger.Field{Key: "channel", Value: key},
				logger.Field{Key: "message_id", Value: msg.MessageID})
		}
		a.events.HandleMessage(trackedMessage(msg))

	case bus.EventMessageUpdated:
		a.events.HandlePinUpdate(key, msg.MessageID, msg.Pinned)

	case bus.EventMessageDeleted:
		a.events.HandleDelete(key, msg.MessageID)

	default:
		a.logger.WarnCtx(ctx, "Unknown message event",
			logger.Field{Key: "kind", Value: string(msg.Kind)},
			logger.Field{Key: "channel", Value: key})
	}
}

func trackedMessage(msg bus.InboundMessage) autodelete.TrackedMessage {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = msg.Timestamp
	}
	return autodelete.TrackedMessage{
		ID:          msg.MessageID,
		ChannelID:   msg.Key(),
		AuthorIsBot: msg.AuthorIsBot,
		Pinned:      msg.Pinned,
		CreatedAt:   createdAt,
	}
}
