package autodelete

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Capabilities - ограничения платформы на удаление в конкретном канале.
type Capabilities struct {
	// BulkDelete - доступно ли массовое удаление.
	BulkDelete bool
	// History - можно ли читать историю канала.
	History bool
	// BulkMaxBatch - сколько сообщений принимает один массовый вызов.
	BulkMaxBatch int
	// BulkMaxAge - сообщения этого возраста и старше удаляются по одному.
	BulkMaxAge time.Duration
}

// Platform - клиент одной платформы. Идентификаторы каналов в этом
// интерфейсе родные для платформы, без префикса.
type Platform interface {
	Name() string
	Capabilities(ctx context.Context, channelID string) (Capabilities, error)
	// FetchHistory возвращает до limit последних сообщений, новые первыми.
	FetchHistory(ctx context.Context, channelID string, limit int) ([]TrackedMessage, error)
	DeleteMessages(ctx context.Context, channelID string, ids []string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Sink - то, что нужно конвейеру от платформ. Каналы адресуются ключами
// "<platform>:<id>".
type Sink interface {
	Capabilities(ctx context.Context, key string) (Capabilities, error)
	FetchHistory(ctx context.Context, key string, limit int) ([]TrackedMessage, error)
	DeleteMessages(ctx context.Context, key string, ids []string) error
	DeleteMessage(ctx context.Context, key, messageID string) error
}

// Router направляет вызовы по ключу канала в зарегистрированную платформу.
type Router struct {
	mu        sync.RWMutex
	platforms map[string]Platform
}

var _ Sink = (*Router)(nil)

// NewRouter создаёт роутер с заданными платформами.
func NewRouter(platforms ...Platform) *Router {
	r := &Router{platforms: make(map[string]Platform)}
	for _, p := range platforms {
		r.Register(p)
	}
	return r
}

// Register добавляет или заменяет платформу.
func (r *Router) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[p.Name()] = p
}

// Platforms возвращает имена зарегистрированных платформ.
func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) resolve(key string) (Platform, string, error) {
	platform, id, err := SplitChannelKey(key)
	if err != nil {
		return nil, "", err
	}
	r.mu.RLock()
	p, ok := r.platforms[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return p, id, nil
}

func (r *Router) Capabilities(ctx context.Context, key string) (Capabilities, error) {
	p, id, err := r.resolve(key)
	if err != nil {
		return Capabilities{}, err
	}
	return p.Capabilities(ctx, id)
}

// FetchHistory подставляет ключ канала в ChannelID полученных сообщений.
func (r *Router) FetchHistory(ctx context.Context, key string, limit int) ([]TrackedMessage, error) {
	p, id, err := r.resolve(key)
	if err != nil {
		return nil, err
	}
	msgs, err := p.FetchHistory(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].ChannelID = key
	}
	return msgs, nil
}

func (r *Router) DeleteMessages(ctx context.Context, key string, ids []string) error {
	p, id, err := r.resolve(key)
	if err != nil {
		return err
	}
	return p.DeleteMessages(ctx, id, ids)
}

func (r *Router) DeleteMessage(ctx context.Context, key, messageID string) error {
	p, id, err := r.resolve(key)
	if err != nil {
		return err
	}
	return p.DeleteMessage(ctx, id, messageID)
}
