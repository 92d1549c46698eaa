// Package channels holds what the platform connectors share: the connector
// lifecycle contract and the translation of platform API failures into the
// auto-delete error taxonomy.
package channels

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/logger"
)

// Connector - жизненный цикл коннектора платформы.
type Connector interface {
	Start(ctx context.Context) error
	Stop() error
}

// ErrorDetails - детализация ошибки API платформы
type ErrorDetails struct {
	Platform    string        // discord, telegram
	StatusCode  int           // HTTP статус (400, 403, 429 и т.д.)
	Code        int           // Код ошибки платформы, если есть
	Description string        // Описание ошибки от платформы
	RetryAfter  time.Duration // Задержка для rate limiting
	ChannelID   string        // ID канала или чата
}

// Error возвращает текстовое описание ошибки
func (d *ErrorDetails) Error() string {
	if d.Code != 0 {
		return fmt.Sprintf("%s api error %d (code %d): %s", d.Platform, d.StatusCode, d.Code, d.Description)
	}
	return fmt.Sprintf("%s api error %d: %s", d.Platform, d.StatusCode, d.Description)
}

// IsRetryable проверяет, можно ли повторить запрос
func (d *ErrorDetails) IsRetryable() bool {
	return d.StatusCode == http.StatusTooManyRequests || (d.StatusCode >= 500 && d.StatusCode < 600)
}

// LogFields возвращает поля для структурированного логирования
func (d *ErrorDetails) LogFields() []logger.Field {
	return []logger.Field{
		{Key: "platform", Value: d.Platform},
		{Key: "status_code", Value: d.StatusCode},
		{Key: "error_code", Value: d.Code},
		{Key: "error_description", Value: d.Description},
		{Key: "retry_after", Value: d.RetryAfter.String()},
		{Key: "channel_id", Value: d.ChannelID},
	}
}

// KindForStatus даёт класс ошибки по HTTP статусу. Коннекторы уточняют
// его по кодам своей платформы.
func KindForStatus(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return autodelete.ErrRateLimited
	case http.StatusForbidden, http.StatusUnauthorized:
		return autodelete.ErrPermission
	case http.StatusNotFound:
		return autodelete.ErrNotFound
	default:
		return autodelete.ErrTransport
	}
}

// Wrap оборачивает детали в ошибку конвейера с классом kind.
func Wrap(op string, kind error, d *ErrorDetails) *autodelete.PlatformError {
	pe := autodelete.NewPlatformError(kind, op, d)
	pe.RetryAfter = d.RetryAfter
	return pe
}

// Transport оборачивает ошибку без ответа API (сеть, таймаут).
// Отмена контекста остаётся распознаваемой через errors.Is.
func Transport(op string, err error) *autodelete.PlatformError {
	return autodelete.NewPlatformError(autodelete.ErrTransport, op, err)
}
