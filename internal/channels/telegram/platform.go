package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	telegoapi "github.com/mymmrac/telego/telegoapi"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/channels"
)

// PlatformName - префикс ключей каналов Telegram.
const PlatformName = "telegram"

const (
	bulkMaxBatch = 100
	// Боты удаляют чужие сообщения в группах только первые 48 часов.
	bulkMaxAge = 48 * time.Hour
)

// Platform реализует autodelete.Platform через Bot API. Bot API не отдаёт
// историю чата, поэтому восстановление после рестарта для Telegram
// ограничено событиями, пришедшими после запуска.
type Platform struct {
	bot     BotInterface
	timeout time.Duration
}

var _ autodelete.Platform = (*Platform)(nil)

// NewPlatform создаёт платформу. timeout ограничивает каждый вызов, 0 - без ограничения.
func NewPlatform(bot BotInterface, timeout time.Duration) *Platform {
	return &Platform{bot: bot, timeout: timeout}
}

func (p *Platform) Name() string { return PlatformName }

func (p *Platform) Capabilities(_ context.Context, _ string) (autodelete.Capabilities, error) {
	return autodelete.Capabilities{
		BulkDelete:   true,
		History:      false,
		BulkMaxBatch: bulkMaxBatch,
		BulkMaxAge:   bulkMaxAge,
	}, nil
}

func (p *Platform) FetchHistory(_ context.Context, _ string, _ int) ([]autodelete.TrackedMessage, error) {
	return nil, autodelete.ErrHistoryUnavailable
}

func (p *Platform) DeleteMessages(ctx context.Context, channelID string, ids []string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return autodelete.NewPlatformError(autodelete.ErrNotFound, "bulk delete", err)
	}

	msgIDs := make([]int, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return autodelete.NewPlatformError(autodelete.ErrTransport, "bulk delete", fmt.Errorf("invalid message id %q: %w", raw, err))
		}
		msgIDs = append(msgIDs, id)
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	err = p.bot.DeleteMessages(callCtx, &telego.DeleteMessagesParams{
		ChatID:     telego.ChatID{ID: chatID},
		MessageIDs: msgIDs,
	})
	if err != nil {
		return mapError("bulk delete", channelID, err)
	}
	return nil
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return autodelete.NewPlatformError(autodelete.ErrNotFound, "delete", err)
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return autodelete.NewPlatformError(autodelete.ErrNotFound, "delete", fmt.Errorf("invalid message id %q: %w", messageID, err))
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	err = p.bot.DeleteMessage(callCtx, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: id,
	})
	if err != nil {
		return mapError("delete", channelID, err)
	}
	return nil
}

func (p *Platform) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func parseChatID(channelID string) (int64, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", channelID, err)
	}
	return id, nil
}

// mapError переводит *telegoapi.Error в классы конвейера.
func mapError(op, channelID string, err error) error {
	var telErr *telegoapi.Error
	if !errors.As(err, &telErr) {
		return channels.Transport(op, err)
	}

	details := &channels.ErrorDetails{
		Platform:    PlatformName,
		StatusCode:  telErr.ErrorCode,
		Description: telErr.Description,
		ChannelID:   channelID,
	}
	if telErr.Parameters != nil {
		details.RetryAfter = time.Duration(telErr.Parameters.RetryAfter) * time.Second
	}

	return channels.Wrap(op, classify(op, details), details)
}

func classify(op string, d *channels.ErrorDetails) error {
	if d.StatusCode != 400 {
		return channels.KindForStatus(d.StatusCode)
	}

	desc := strings.ToLower(d.Description)
	switch {
	case strings.Contains(desc, "message to delete not found"),
		strings.Contains(desc, "message_id_invalid"),
		strings.Contains(desc, "chat not found"):
		return autodelete.ErrNotFound
	case strings.Contains(desc, "message can't be deleted"):
		if op == "bulk delete" {
			return autodelete.ErrTooOldForBulk
		}
		return autodelete.ErrPermission
	case strings.Contains(desc, "not enough rights"),
		strings.Contains(desc, "have no rights"):
		return autodelete.ErrPermission
	}
	return autodelete.ErrTransport
}
