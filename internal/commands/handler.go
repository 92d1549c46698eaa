// Package commands implements the admin command surface of the bot:
// autodelete, autodeletestatus, clear and clearold. Commands arrive as
// inbound bus messages; replies are published back to the bus.
package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/constants"
	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/workers"
)

// AutoDeleteService - операции конвейера, нужные командам.
type AutoDeleteService interface {
	SetRule(rule autodelete.RetentionRule) error
	RemoveRule(key string) (bool, error)
	Status(key string) autodelete.Status
	Clear(ctx context.Context, key string, n int) (int, error)
	ClearOld(ctx context.Context, key string, n, scan int) (int, error)
}

// MessageBusInterface defines the interface for message bus operations needed by Handler
type MessageBusInterface interface {
	PublishOutbound(msg bus.OutboundMessage) error
}

// TaskRunner запускает долгие команды вне цикла событий.
type TaskRunner interface {
	TrySubmit(task workers.Task) error
}

// Platform - настройки команд для одной платформы.
type Platform struct {
	Type       bus.ChannelType
	Prefix     string
	AdminUsers []string
}

// Handler handles admin commands.
type Handler struct {
	service    AutoDeleteService
	messageBus MessageBusInterface
	runner     TaskRunner
	logger     *logger.Logger
	platforms  map[bus.ChannelType]Platform
}

// NewHandler creates a new command handler.
func NewHandler(
	service AutoDeleteService,
	messageBus MessageBusInterface,
	runner TaskRunner,
	log *logger.Logger,
	platforms ...Platform,
) *Handler {
	h := &Handler{
		service:    service,
		messageBus: messageBus,
		runner:     runner,
		logger:     log.Component("commands"),
		platforms:  make(map[bus.ChannelType]Platform, len(platforms)),
	}
	for _, p := range platforms {
		h.platforms[p.Type] = p
	}
	return h
}

// Parse распознаёт команду в сообщении по префиксу его платформы.
func (h *Handler) Parse(msg bus.InboundMessage) (Command, bool) {
	p, ok := h.platforms[msg.ChannelType]
	if !ok {
		return Command{}, false
	}
	return Parse(p.Prefix, msg.Content)
}

// IsAdmin сообщает, может ли пользователь управлять ботом на этой платформе.
// Пустой список администраторов отключает команды.
func (h *Handler) IsAdmin(channelType bus.ChannelType, userID string) bool {
	p, ok := h.platforms[channelType]
	if !ok || userID == "" {
		return false
	}
	return slices.Contains(p.AdminUsers, userID)
}

// HandleMessage выполняет команду из сообщения, если она там есть.
// Возвращает true, если сообщение было командой.
func (h *Handler) HandleMessage(ctx context.Context, msg bus.InboundMessage) (bool, error) {
	cmd, ok := h.Parse(msg)
	if !ok || !isKnown(cmd.Name) {
		return false, nil
	}

	if !h.IsAdmin(msg.ChannelType, msg.UserID) {
		h.logger.DebugCtx(ctx, "ignoring command from non-admin",
			logger.Field{Key: "command", Value: cmd.Name},
			logger.Field{Key: "user_id", Value: msg.UserID},
			logger.Field{Key: "channel", Value: msg.Key()})
		return true, nil
	}

	return true, h.HandleCommand(ctx, cmd, msg)
}

func isKnown(name string) bool {
	switch name {
	case constants.CommandAutoDelete, constants.CommandAutoDeleteStatus,
		constants.CommandClear, constants.CommandClearOld:
		return true
	}
	return false
}

// HandleCommand processes a command based on its type.
func (h *Handler) HandleCommand(ctx context.Context, cmd Command, msg bus.InboundMessage) error {
	h.logger.InfoCtx(ctx, "command received",
		logger.Field{Key: "command", Value: cmd.Name},
		logger.Field{Key: "args", Value: strings.Join(cmd.Args, " ")},
		logger.Field{Key: "user_id", Value: msg.UserID},
		logger.Field{Key: "channel", Value: msg.Key()})

	switch cmd.Name {
	case constants.CommandAutoDelete:
		return h.handleAutoDelete(ctx, cmd, msg)
	case constants.CommandAutoDeleteStatus:
		return h.handleStatus(ctx, msg)
	case constants.CommandClear, constants.CommandClearOld:
		return h.handleClear(ctx, cmd, msg)
	default:
		return h.reply(ctx, msg, fmt.Sprintf(constants.MsgUnknownCommand, cmd.Name))
	}
}

func (h *Handler) handleAutoDelete(ctx context.Context, cmd Command, msg bus.InboundMessage) error {
	prefix := h.platforms[msg.ChannelType].Prefix
	args, err := ParseAutoDelete(cmd.Args)
	if err != nil {
		text := fmt.Sprintf(constants.MsgAutoDeleteUsage, prefix, prefix)
		if errors.Is(err, ErrInertRule) {
			text = fmt.Sprintf(constants.MsgErrorFormat, err)
		}
		return h.reply(ctx, msg, text)
	}

	key := msg.Key()
	if args.Off {
		removed, err := h.service.RemoveRule(key)
		if err != nil {
			return h.replyError(ctx, msg, "failed to remove rule", err)
		}
		if !removed {
			return h.reply(ctx, msg, constants.MsgRuleNotFound)
		}
		return h.reply(ctx, msg, constants.MsgRuleRemoved)
	}

	rule := autodelete.RetentionRule{
		ChannelID:     key,
		MessageLimit:  args.Limit,
		MaxAgeSeconds: args.MaxAgeSeconds,
	}
	if err := h.service.SetRule(rule); err != nil {
		return h.replyError(ctx, msg, "failed to set rule", err)
	}
	return h.reply(ctx, msg, ruleConfirmation(rule))
}

func ruleConfirmation(rule autodelete.RetentionRule) string {
	switch {
	case rule.MaxAgeSeconds == 0:
		return fmt.Sprintf(constants.MsgRuleSetCountOnly, rule.MessageLimit)
	case rule.MessageLimit == 0:
		return fmt.Sprintf(constants.MsgRuleSetAgeOnly, rule.MaxAge())
	default:
		return fmt.Sprintf(constants.MsgRuleSet, rule.MessageLimit, rule.MaxAge())
	}
}

func (h *Handler) handleStatus(ctx context.Context, msg bus.InboundMessage) error {
	return h.reply(ctx, msg, FormatStatus(h.service.Status(msg.Key()), time.Now()))
}

// FormatStatus готовит текст ответа autodeletestatus.
func FormatStatus(status autodelete.Status, now time.Time) string {
	state := "stopped"
	if status.Running {
		state = "running"
	}
	lastTick := "never"
	if !status.LastTick.IsZero() {
		lastTick = now.Sub(status.LastTick).Truncate(time.Second).String() + " ago"
	}

	lines := []string{fmt.Sprintf(constants.MsgStatusSweeper, state, lastTick, status.Channels)}
	if status.Rule == nil {
		lines = append(lines, constants.MsgStatusNoRule)
	} else {
		lines = append(lines, fmt.Sprintf(constants.MsgStatusChannel,
			status.Rule.MessageLimit, status.Rule.MaxAge(), status.Window, status.Pending))
	}
	return strings.Join(lines, "\n")
}

// handleClear ставит clear или clearold в пул: удаление может идти минуты.
func (h *Handler) handleClear(ctx context.Context, cmd Command, msg bus.InboundMessage) error {
	n, err := ParseCount(cmd.Args, constants.ClearMaxCount)
	if err != nil {
		prefix := h.platforms[msg.ChannelType].Prefix
		return h.reply(ctx, msg, fmt.Sprintf(constants.MsgClearUsage, prefix, cmd.Name, constants.ClearMaxCount))
	}

	key := msg.Key()
	task := workers.Task{
		ID:      uuid.NewString(),
		Type:    workers.TaskTypePurge,
		Key:     key,
		Context: ctx,
		Run: func(ctx context.Context) error {
			var deleted int
			var err error
			if cmd.Name == constants.CommandClearOld {
				deleted, err = h.service.ClearOld(ctx, key, n, constants.ClearOldScanLimit)
			} else {
				deleted, err = h.service.Clear(ctx, key, n)
			}
			if err != nil {
				return h.replyError(ctx, msg, cmd.Name+" failed", err)
			}
			return h.reply(ctx, msg, fmt.Sprintf(constants.MsgClearDone, deleted))
		},
	}

	if err := h.runner.TrySubmit(task); err != nil {
		return h.replyError(ctx, msg, "failed to schedule "+cmd.Name, err)
	}
	return nil
}

// replyError логирует ошибку и сообщает о ней в канал.
func (h *Handler) replyError(ctx context.Context, msg bus.InboundMessage, logMsg string, err error) error {
	h.logger.ErrorCtx(ctx, logMsg, err, logger.Field{Key: "channel", Value: msg.Key()})
	if pubErr := h.reply(ctx, msg, fmt.Sprintf(constants.MsgErrorFormat, err)); pubErr != nil {
		return fmt.Errorf("%s: %w (publish error: %v)", logMsg, err, pubErr)
	}
	return fmt.Errorf("%s: %w", logMsg, err)
}

func (h *Handler) reply(ctx context.Context, msg bus.InboundMessage, text string) error {
	out := bus.NewOutboundMessage(msg.ChannelType, msg.ChannelID, msg.MessageID, text, uuid.NewString())
	if err := h.messageBus.PublishOutbound(*out); err != nil {
		h.logger.ErrorCtx(ctx, "failed to publish reply", err,
			logger.Field{Key: "channel", Value: msg.Key()})
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}
