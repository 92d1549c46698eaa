// Package telegram provides Telegram Bot integration using the Telego library.
// Updates received by long polling are published to the message bus as
// message events; replies from the bus are sent back to the chat; Platform
// deletes messages for the auto-delete pipeline.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/channels"
	"github.com/aatumaykin/modbot/internal/config"
	"github.com/aatumaykin/modbot/internal/constants"
	"github.com/aatumaykin/modbot/internal/logger"
)

const sendTimeout = 30 * time.Second

// MessageBus - то, что коннектору нужно от шины.
type MessageBus interface {
	PublishInbound(msg bus.InboundMessage) error
	SubscribeOutbound(ctx context.Context) <-chan bus.OutboundMessage
}

// Connector represents the Telegram bot connector
type Connector struct {
	cfg             config.TelegramConfig
	logger          *logger.Logger
	bus             MessageBus
	bot             BotInterface
	platform        *Platform
	longPollManager *LongPollManager
	updateHandler   *UpdateHandler

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

var _ channels.Connector = (*Connector)(nil)

// New creates a new Telegram connector. The bot is created here so that
// Platform is usable before Start.
func New(cfg config.TelegramConfig, log *logger.Logger, msgBus MessageBus) (*Connector, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	return newConnector(cfg, log, msgBus, NewBotAdapter(bot)), nil
}

func newConnector(cfg config.TelegramConfig, log *logger.Logger, msgBus MessageBus, bot BotInterface) *Connector {
	log = log.Component("telegram")
	c := &Connector{
		cfg:      cfg,
		logger:   log,
		bus:      msgBus,
		bot:      bot,
		platform: NewPlatform(bot, sendTimeout),
	}
	c.updateHandler = NewUpdateHandler(log, msgBus)
	c.longPollManager = NewLongPollManager(bot, c.updateHandler, cfg.PollTimeoutSeconds, log)
	return c
}

// Platform возвращает клиент для конвейера автоудаления.
func (c *Connector) Platform() *Platform {
	return c.platform
}

// Start checks the token, registers the command menu and starts long polling.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("telegram connector already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	botUser, err := c.bot.GetMe(c.ctx)
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to get bot info: %w", err)
	}

	c.logger.Info("telegram bot initialized",
		logger.Field{Key: "bot_id", Value: botUser.ID},
		logger.Field{Key: "username", Value: botUser.Username})

	if err := c.registerCommands(); err != nil {
		c.logger.ErrorCtx(c.ctx, "failed to register bot commands", err)
	}

	outbound := c.bus.SubscribeOutbound(c.ctx)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.handleOutbound(outbound)
	}()
	go func() {
		defer c.wg.Done()
		c.longPollManager.Run(c.ctx)
	}()

	c.started = true
	return nil
}

// Stop gracefully stops the Telegram connector
func (c *Connector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.logger.Info("stopping telegram connector")
	c.cancel()
	c.wg.Wait()
	c.started = false
	c.logger.Info("telegram connector stopped gracefully")
	return nil
}

// registerCommands registers bot commands with Telegram
func (c *Connector) registerCommands() error {
	commands := &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: constants.CommandAutoDelete, Description: "Set auto-delete: <limit> <time> [unit] or off"},
			{Command: constants.CommandAutoDeleteStatus, Description: "Show auto-delete status"},
			{Command: constants.CommandClear, Description: "Delete the last N messages"},
			{Command: constants.CommandClearOld, Description: "Delete the N oldest tracked messages"},
		},
	}

	if err := c.bot.SetMyCommands(c.ctx, commands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	c.logger.Info("bot commands registered successfully")
	return nil
}

// handleOutbound sends replies published on the bus to Telegram
func (c *Connector) handleOutbound(outbound <-chan bus.OutboundMessage) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-outbound:
			if !ok {
				c.logger.Info("outbound channel closed")
				return
			}
			if msg.ChannelType != bus.ChannelTypeTelegram {
				continue
			}
			if err := c.sendTextMessage(msg); err != nil {
				fields := []logger.Field{
					{Key: "chat_id", Value: msg.ChannelID},
					{Key: "correlation_id", Value: msg.CorrelationID},
				}
				var details *channels.ErrorDetails
				if errors.As(err, &details) {
					fields = append(fields, details.LogFields()...)
				}
				c.logger.ErrorCtx(c.ctx, "failed to send telegram message", err, fields...)
			}
		}
	}
}

// sendTextMessage sends a plain text reply
func (c *Connector) sendTextMessage(msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChannelID)
	if err != nil {
		return err
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   msg.Content,
	}
	if msg.ReplyTo != "" {
		if replyID, err := strconv.Atoi(msg.ReplyTo); err == nil {
			params.ReplyParameters = &telego.ReplyParameters{
				MessageID:                replyID,
				AllowSendingWithoutReply: true,
			}
		}
	}

	ctx, cancel := context.WithTimeout(c.ctx, sendTimeout)
	defer cancel()

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return mapError("send", msg.ChannelID, err)
	}
	return nil
}
