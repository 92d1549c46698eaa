package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/logger"
)

// UpdateHandler turns Telegram updates into bus message events.
type UpdateHandler struct {
	logger *logger.Logger
	bus    MessageBus
	now    func() time.Time
}

// NewUpdateHandler creates a new update handler.
func NewUpdateHandler(logger *logger.Logger, bus MessageBus) *UpdateHandler {
	return &UpdateHandler{
		logger: logger,
		bus:    bus,
		now:    time.Now,
	}
}

// Handle publishes the events carried by one update. A pin service message
// yields a pin update for the pinned message and a created event for itself.
func (uh *UpdateHandler) Handle(update telego.Update) error {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return nil
	}

	var errs []error
	if msg.PinnedMessage != nil {
		pinned := bus.InboundMessage{
			Kind:        bus.EventMessageUpdated,
			ChannelType: bus.ChannelTypeTelegram,
			ChannelID:   strconv.FormatInt(msg.Chat.ID, 10),
			MessageID:   strconv.Itoa(msg.PinnedMessage.GetMessageID()),
			Pinned:      true,
			Timestamp:   uh.now(),
		}
		if err := uh.bus.PublishInbound(pinned); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish pin update: %w", err))
		}
	}

	inbound := uh.toInbound(msg)
	if err := uh.bus.PublishInbound(inbound); err != nil {
		errs = append(errs, fmt.Errorf("failed to publish inbound message: %w", err))
	}

	uh.logger.Debug("inbound message published",
		logger.Field{Key: "chat_id", Value: inbound.ChannelID},
		logger.Field{Key: "message_id", Value: inbound.MessageID},
		logger.Field{Key: "user_id", Value: inbound.UserID})

	return errors.Join(errs...)
}

func (uh *UpdateHandler) toInbound(msg *telego.Message) bus.InboundMessage {
	inbound := bus.InboundMessage{
		Kind:        bus.EventMessageCreated,
		ChannelType: bus.ChannelTypeTelegram,
		ChannelID:   strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:   strconv.Itoa(msg.MessageID),
		CreatedAt:   time.Unix(msg.Date, 0),
		Content:     msg.Text,
		Timestamp:   uh.now(),
	}
	if inbound.Content == "" {
		inbound.Content = msg.Caption
	}
	if msg.From != nil {
		inbound.UserID = strconv.FormatInt(msg.From.ID, 10)
		inbound.AuthorIsBot = msg.From.IsBot
	}
	return inbound
}
