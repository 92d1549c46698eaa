package autodelete

import (
	"errors"
	"fmt"
	"time"
)

// Классы ошибок платформы. Коннекторы оборачивают ответы клиентов
// в *PlatformError с одним из этих значений в Kind.
var (
	// ErrPermission - нет прав читать историю или удалять сообщения.
	ErrPermission = errors.New("permission denied")
	// ErrNotFound - сообщение или канал уже удалены; для удаления это успех.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited - платформа просит притормозить.
	ErrRateLimited = errors.New("rate limited")
	// ErrTooOldForBulk - сообщение старше предела массового удаления.
	ErrTooOldForBulk = errors.New("message too old for bulk delete")
	// ErrBulkUnsupported - в этом канале массовое удаление недоступно.
	ErrBulkUnsupported = errors.New("bulk delete not supported for channel")
	// ErrTransport - сетевая или неизвестная ошибка.
	ErrTransport = errors.New("transport error")
	// ErrConfigCorrupt - файл правил не читается.
	ErrConfigCorrupt = errors.New("rule store corrupt")
	// ErrUnknownPlatform - для ключа канала не зарегистрирована платформа.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// PlatformError - ошибка вызова платформы с классом и подсказкой retry-after.
type PlatformError struct {
	Kind       error
	Op         string
	RetryAfter time.Duration
	Err        error
}

// NewPlatformError создаёт ошибку класса kind для операции op.
func NewPlatformError(kind error, op string, err error) *PlatformError {
	return &PlatformError{Kind: kind, Op: op, Err: err}
}

func (e *PlatformError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// Unwrap позволяет errors.Is находить и класс, и исходную ошибку.
func (e *PlatformError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classify возвращает класс ошибки. Всё неизвестное считается транспортной ошибкой.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrPermission, ErrRateLimited, ErrTooOldForBulk, ErrBulkUnsupported, ErrUnknownPlatform} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrTransport
}

// RetryAfter извлекает подсказку платформы о паузе, 0 если её нет.
func RetryAfter(err error) time.Duration {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// outcome - метка для метрик и логов.
func outcome(err error) string {
	switch Classify(err) {
	case nil:
		return "deleted"
	case ErrNotFound:
		return "not_found"
	case ErrPermission:
		return "forbidden"
	case ErrRateLimited:
		return "rate_limited"
	case ErrTooOldForBulk:
		return "too_old"
	case ErrBulkUnsupported:
		return "unsupported"
	case ErrUnknownPlatform:
		return "unknown_platform"
	default:
		return "error"
	}
}
