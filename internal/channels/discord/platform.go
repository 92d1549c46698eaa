package discord

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	discordapi "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/channels"
)

// PlatformName - префикс ключей каналов Discord.
const PlatformName = "discord"

const (
	historyPageSize = 100
	bulkMaxBatch    = 100
	bulkMaxAge      = 14 * 24 * time.Hour
)

// Коды ошибок JSON API Discord.
const (
	codeUnknownChannel              = 10003
	codeUnknownMessage              = 10008
	codeMissingAccess               = 50001
	codeInvalidChannelType          = 50003
	codeMissingPermissions          = 50013
	codeInvalidChannelTypeForAction = 50024
	codeMessageTooOldToBulk         = 50034
)

// RestClient - подмножество rest.Rest, которое нужно коннектору.
type RestClient interface {
	GetMessages(channelID snowflake.ID, around snowflake.ID, before snowflake.ID, after snowflake.ID, limit int, opts ...rest.RequestOpt) ([]discordapi.Message, error)
	DeleteMessage(channelID snowflake.ID, messageID snowflake.ID, opts ...rest.RequestOpt) error
	BulkDeleteMessages(channelID snowflake.ID, messageIDs []snowflake.ID, opts ...rest.RequestOpt) error
	CreateMessage(channelID snowflake.ID, messageCreate discordapi.MessageCreate, opts ...rest.RequestOpt) (*discordapi.Message, error)
}

// Platform реализует autodelete.Platform поверх REST API Discord.
type Platform struct {
	rest    RestClient
	timeout time.Duration
}

var _ autodelete.Platform = (*Platform)(nil)

// NewPlatform создаёт платформу. timeout ограничивает каждый REST вызов, 0 - без ограничения.
func NewPlatform(client RestClient, timeout time.Duration) *Platform {
	return &Platform{rest: client, timeout: timeout}
}

func (p *Platform) Name() string { return PlatformName }

// Capabilities одинаковы для всех текстовых каналов. Для личных сообщений
// массовое удаление вернёт 50003, и исполнитель понизит возможности канала сам.
func (p *Platform) Capabilities(_ context.Context, _ string) (autodelete.Capabilities, error) {
	return autodelete.Capabilities{
		BulkDelete:   true,
		History:      true,
		BulkMaxBatch: bulkMaxBatch,
		BulkMaxAge:   bulkMaxAge,
	}, nil
}

// FetchHistory листает историю страницами по 100 сообщений от новых к старым.
func (p *Platform) FetchHistory(ctx context.Context, channelID string, limit int) ([]autodelete.TrackedMessage, error) {
	id, err := snowflake.Parse(channelID)
	if err != nil {
		return nil, autodelete.NewPlatformError(autodelete.ErrNotFound, "history", err)
	}

	result := make([]autodelete.TrackedMessage, 0, limit)
	var before snowflake.ID
	for len(result) < limit {
		page := min(historyPageSize, limit-len(result))

		callCtx, cancel := p.callContext(ctx)
		msgs, err := p.rest.GetMessages(id, 0, before, 0, page, rest.WithCtx(callCtx))
		cancel()
		if err != nil {
			return nil, mapError("history", channelID, err)
		}

		for _, m := range msgs {
			result = append(result, toTracked(m))
		}
		if len(msgs) < page {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	return result, nil
}

func (p *Platform) DeleteMessages(ctx context.Context, channelID string, ids []string) error {
	chID, err := snowflake.Parse(channelID)
	if err != nil {
		return autodelete.NewPlatformError(autodelete.ErrNotFound, "bulk delete", err)
	}

	msgIDs := make([]snowflake.ID, 0, len(ids))
	for _, raw := range ids {
		msgID, err := snowflake.Parse(raw)
		if err != nil {
			return autodelete.NewPlatformError(autodelete.ErrTransport, "bulk delete", err)
		}
		msgIDs = append(msgIDs, msgID)
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	if err := p.rest.BulkDeleteMessages(chID, msgIDs, rest.WithCtx(callCtx)); err != nil {
		return mapError("bulk delete", channelID, err)
	}
	return nil
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	chID, err := snowflake.Parse(channelID)
	if err != nil {
		return autodelete.NewPlatformError(autodelete.ErrNotFound, "delete", err)
	}
	msgID, err := snowflake.Parse(messageID)
	if err != nil {
		return autodelete.NewPlatformError(autodelete.ErrNotFound, "delete", err)
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	if err := p.rest.DeleteMessage(chID, msgID, rest.WithCtx(callCtx)); err != nil {
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

func toTracked(m discordapi.Message) autodelete.TrackedMessage {
	return autodelete.TrackedMessage{
		ID:          m.ID.String(),
		ChannelID:   m.ChannelID.String(),
		AuthorIsBot: m.Author.Bot,
		Pinned:      m.Pinned,
		CreatedAt:   m.CreatedAt,
	}
}

// mapError переводит ошибку REST клиента в классы конвейера.
func mapError(op, channelID string, err error) error {
	var restErr *rest.Error
	if !errors.As(err, &restErr) {
		return channels.Transport(op, err)
	}

	details := &channels.ErrorDetails{
		Platform:    PlatformName,
		Code:        int(restErr.Code),
		Description: restErr.Message,
		ChannelID:   channelID,
	}
	if restErr.Response != nil {
		details.StatusCode = restErr.Response.StatusCode
		details.RetryAfter = parseRetryAfter(restErr.Response.Header)
	}

	return channels.Wrap(op, classify(op, details), details)
}

func classify(op string, d *channels.ErrorDetails) error {
	switch d.Code {
	case codeUnknownChannel, codeUnknownMessage:
		return autodelete.ErrNotFound
	case codeMissingAccess, codeMissingPermissions:
		return autodelete.ErrPermission
	case codeMessageTooOldToBulk:
		return autodelete.ErrTooOldForBulk
	case codeInvalidChannelType, codeInvalidChannelTypeForAction:
		if op == "bulk delete" {
			return autodelete.ErrBulkUnsupported
		}
		return autodelete.ErrPermission
	}
	return channels.KindForStatus(d.StatusCode)
}

// parseRetryAfter читает Retry-After в секундах, допускается дробная часть.
func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
