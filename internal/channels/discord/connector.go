// Package discord connects modbot to Discord through disgo: gateway message
// events go to the message bus, replies come back from it, and Platform
// exposes history and deletion to the auto-delete pipeline.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	discordapi "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/channels"
	"github.com/aatumaykin/modbot/internal/config"
	"github.com/aatumaykin/modbot/internal/logger"
)

// MessageBus - то, что коннектору нужно от шины.
type MessageBus interface {
	PublishInbound(msg bus.InboundMessage) error
	SubscribeOutbound(ctx context.Context) <-chan bus.OutboundMessage
}

// Connector - коннектор Discord.
type Connector struct {
	cfg      config.DiscordConfig
	logger   *logger.Logger
	bus      MessageBus
	client   *bot.Client
	rest     RestClient
	platform *Platform

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

var _ channels.Connector = (*Connector)(nil)

// New создаёт клиент disgo. Соединение с gateway открывает Start.
func New(cfg config.DiscordConfig, log *logger.Logger, msgBus MessageBus) (*Connector, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is empty")
	}

	c := &Connector{
		cfg:    cfg,
		logger: log.Component("discord"),
		bus:    msgBus,
	}

	client, err := disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuildMessages,
				gateway.IntentDirectMessages,
				gateway.IntentMessageContent,
			),
		),
		bot.WithEventListenerFunc(c.onMessageCreate),
		bot.WithEventListenerFunc(c.onMessageUpdate),
		bot.WithEventListenerFunc(c.onMessageDelete),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	c.client = client
	c.rest = client.Rest
	c.platform = NewPlatform(client.Rest, requestTimeout(cfg))
	return c, nil
}

func requestTimeout(cfg config.DiscordConfig) time.Duration {
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

// Platform возвращает клиент для конвейера автоудаления.
func (c *Connector) Platform() *Platform {
	return c.platform
}

// Start открывает gateway и начинает доставку ответов.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("discord connector already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	if c.client != nil {
		if err := c.client.OpenGateway(c.ctx); err != nil {
			c.cancel()
			return fmt.Errorf("failed to open discord gateway: %w", err)
		}
	}

	outbound := c.bus.SubscribeOutbound(c.ctx)
	c.wg.Add(1)
	go c.handleOutbound(outbound)

	c.started = true
	c.logger.Info("discord connector started")
	return nil
}

// Stop закрывает gateway и ждёт завершения отправки ответов.
func (c *Connector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.cancel()
	c.wg.Wait()

	if c.client != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.client.Close(closeCtx)
	}

	c.started = false
	c.logger.Info("discord connector stopped")
	return nil
}

func (c *Connector) onMessageCreate(e *events.MessageCreate) {
	c.publish(inboundFromMessage(bus.EventMessageCreated, e.Message))
}

func (c *Connector) onMessageUpdate(e *events.MessageUpdate) {
	if e.Message.Pinned == e.OldMessage.Pinned && e.OldMessage.ID != 0 {
		return
	}
	c.publish(inboundFromMessage(bus.EventMessageUpdated, e.Message))
}

func (c *Connector) onMessageDelete(e *events.MessageDelete) {
	c.publish(bus.InboundMessage{
		Kind:        bus.EventMessageDeleted,
		ChannelType: bus.ChannelTypeDiscord,
		ChannelID:   e.ChannelID.String(),
		MessageID:   e.MessageID.String(),
		Timestamp:   time.Now(),
	})
}

func (c *Connector) publish(msg bus.InboundMessage) {
	if err := c.bus.PublishInbound(msg); err != nil {
		c.logger.Error("failed to publish discord event", err,
			logger.Field{Key: "kind", Value: string(msg.Kind)},
			logger.Field{Key: "channel_id", Value: msg.ChannelID},
			logger.Field{Key: "message_id", Value: msg.MessageID})
	}
}

func inboundFromMessage(kind bus.EventKind, m discordapi.Message) bus.InboundMessage {
	return bus.InboundMessage{
		Kind:        kind,
		ChannelType: bus.ChannelTypeDiscord,
		ChannelID:   m.ChannelID.String(),
		MessageID:   m.ID.String(),
		UserID:      m.Author.ID.String(),
		AuthorIsBot: m.Author.Bot,
		Pinned:      m.Pinned,
		CreatedAt:   m.CreatedAt,
		Content:     m.Content,
		Timestamp:   time.Now(),
	}
}

func (c *Connector) handleOutbound(outbound <-chan bus.OutboundMessage) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			if msg.ChannelType != bus.ChannelTypeDiscord {
				continue
			}
			if err := c.send(c.ctx, msg); err != nil {
				c.logger.Error("failed to send discord reply", err,
					logger.Field{Key: "channel_id", Value: msg.ChannelID},
					logger.Field{Key: "correlation_id", Value: msg.CorrelationID})
			}
		}
	}
}

func (c *Connector) send(ctx context.Context, msg bus.OutboundMessage) error {
	channelID, err := snowflake.Parse(msg.ChannelID)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", msg.ChannelID, err)
	}

	create := discordapi.MessageCreate{Content: msg.Content}
	if msg.ReplyTo != "" {
		if replyID, err := snowflake.Parse(msg.ReplyTo); err == nil {
			create.MessageReference = &discordapi.MessageReference{
				MessageID: &replyID,
				ChannelID: &channelID,
			}
		}
	}

	callCtx := ctx
	if timeout := requestTimeout(c.cfg); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if _, err := c.rest.CreateMessage(channelID, create, rest.WithCtx(callCtx)); err != nil {
		return mapError("send", msg.ChannelID, err)
	}
	return nil
}
