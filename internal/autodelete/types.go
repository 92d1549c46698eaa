// Package autodelete implements per-channel message retention: rules that
// keep at most N recent messages and/or delete messages older than a maximum
// age. Incoming messages are tracked in an in-memory recency window; overflow
// and expired entries move to a pending queue that a periodic sweeper drains
// through the platform's delete calls.
package autodelete

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Поддерживаемые платформы.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

var (
	// ErrInvalidChannelKey возвращается для ключа не вида "<platform>:<id>".
	ErrInvalidChannelKey = errors.New("invalid channel key")
)

// RetentionRule - правило хранения сообщений в канале.
// Нулевой MessageLimit означает "без ограничения по количеству",
// нулевой MaxAgeSeconds - "без ограничения по возрасту".
type RetentionRule struct {
	ChannelID     string `json:"-" yaml:"channel"`
	MessageLimit  uint   `json:"limit" yaml:"limit"`
	MaxAgeSeconds uint   `json:"time" yaml:"time"`
}

// Inert сообщает, что правило ничего не удаляет.
func (r RetentionRule) Inert() bool {
	return r.MessageLimit == 0 && r.MaxAgeSeconds == 0
}

// MaxAge возвращает максимальный возраст сообщения, 0 если ограничения нет.
func (r RetentionRule) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeSeconds) * time.Second
}

func (r RetentionRule) String() string {
	return fmt.Sprintf("%s limit=%d max_age=%s", r.ChannelID, r.MessageLimit, r.MaxAge())
}

// TrackedMessage - сообщение, за которым следит конвейер.
// Авторитетная копия живёт на платформе.
type TrackedMessage struct {
	ID          string
	ChannelID   string
	AuthorIsBot bool
	Pinned      bool
	CreatedAt   time.Time
}

// Age возвращает возраст сообщения на момент now.
func (m TrackedMessage) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// ChannelKey строит ключ канала "<platform>:<id>".
func ChannelKey(platform, id string) string {
	return platform + ":" + id
}

// SplitChannelKey разбирает ключ канала. Голый числовой ключ считается
// каналом Discord: так записаны правила в старом autodelete.json.
func SplitChannelKey(key string) (platform, id string, err error) {
	if isDigits(key) {
		return PlatformDiscord, key, nil
	}

	platform, id, ok := strings.Cut(key, ":")
	if !ok || platform == "" || id == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidChannelKey, key)
	}
	if platform != strings.ToLower(platform) || strings.ContainsAny(platform, " \t") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidChannelKey, key)
	}
	return platform, id, nil
}

// NormalizeChannelKey приводит ключ к виду "<platform>:<id>".
func NormalizeChannelKey(key string) (string, error) {
	platform, id, err := SplitChannelKey(strings.TrimSpace(key))
	if err != nil {
		return "", err
	}
	return ChannelKey(platform, id), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
