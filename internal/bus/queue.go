package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/aatumaykin/modbot/internal/logger"
)

var (
	ErrQueueFull      = errors.New("queue is full")
	ErrAlreadyStarted = errors.New("message bus is already started")
	ErrNotStarted     = errors.New("message bus is not started")
)

// MessageBus represents an asynchronous message queue for inbound and outbound messages
type MessageBus struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    sync.WaitGroup

	capacity   int
	inboundCh  chan InboundMessage
	outboundCh chan OutboundMessage

	inboundSubscribers  map[int64]chan InboundMessage
	outboundSubscribers map[int64]chan OutboundMessage
	subscriberID        int64
}

// New creates a new MessageBus with the specified capacity for both queues
func New(capacity int, log *logger.Logger) *MessageBus {
	if capacity < 1 {
		capacity = 1
	}
	return &MessageBus{
		logger:              log.Component("bus"),
		capacity:            capacity,
		inboundSubscribers:  make(map[int64]chan InboundMessage),
		outboundSubscribers: make(map[int64]chan OutboundMessage),
	}
}

// Start starts the message bus goroutines
func (mb *MessageBus) Start(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.started {
		return ErrAlreadyStarted
	}

	mb.ctx, mb.cancel = context.WithCancel(ctx)
	mb.inboundCh = make(chan InboundMessage, mb.capacity)
	mb.outboundCh = make(chan OutboundMessage, mb.capacity)
	mb.started = true

	mb.done.Add(2)
	go distribute(mb, mb.inboundCh, func() []chan InboundMessage { return snapshot(mb, mb.inboundSubscribers) })
	go distribute(mb, mb.outboundCh, func() []chan OutboundMessage { return snapshot(mb, mb.outboundSubscribers) })

	mb.logger.Info("message bus started", logger.Field{Key: "capacity", Value: mb.capacity})
	return nil
}

// Stop stops the message bus and closes all subscriber channels
func (mb *MessageBus) Stop() error {
	mb.mu.RLock()
	started := mb.started
	cancel := mb.cancel
	mb.mu.RUnlock()

	if !started {
		return ErrNotStarted
	}

	// распределители должны выйти до закрытия каналов подписчиков
	cancel()
	mb.done.Wait()

	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.started {
		return ErrNotStarted
	}

	for id, ch := range mb.inboundSubscribers {
		close(ch)
		delete(mb.inboundSubscribers, id)
	}
	for id, ch := range mb.outboundSubscribers {
		close(ch)
		delete(mb.outboundSubscribers, id)
	}

	mb.started = false
	mb.logger.Info("message bus stopped")
	return nil
}

// PublishInbound publishes an inbound message to the queue
func (mb *MessageBus) PublishInbound(msg InboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if !mb.started {
		return ErrNotStarted
	}

	select {
	case mb.inboundCh <- msg:
		return nil
	default:
		mb.logger.WarnCtx(mb.ctx, "inbound queue full",
			logger.Field{Key: "capacity", Value: cap(mb.inboundCh)},
			logger.Field{Key: "channel", Value: msg.Key()})
		return ErrQueueFull
	}
}

// PublishOutbound publishes an outbound message to the queue
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if !mb.started {
		return ErrNotStarted
	}

	select {
	case mb.outboundCh <- msg:
		return nil
	default:
		mb.logger.WarnCtx(mb.ctx, "outbound queue full",
			logger.Field{Key: "capacity", Value: cap(mb.outboundCh)})
		return ErrQueueFull
	}
}

// SubscribeInbound subscribes to inbound messages
func (mb *MessageBus) SubscribeInbound(ctx context.Context) <-chan InboundMessage {
	return subscribe(ctx, mb, mb.inboundSubscribers)
}

// SubscribeOutbound subscribes to outbound messages
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) <-chan OutboundMessage {
	return subscribe(ctx, mb, mb.outboundSubscribers)
}

// IsStarted returns true if the message bus is started
func (mb *MessageBus) IsStarted() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.started
}

func subscribe[T any](ctx context.Context, mb *MessageBus, subscribers map[int64]chan T) <-chan T {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.started {
		return nil
	}

	ch := make(chan T, mb.capacity)
	mb.subscriberID++
	id := mb.subscriberID
	subscribers[id] = ch

	mb.logger.DebugCtx(ctx, "subscriber added", logger.Field{Key: "subscriber_id", Value: id})
	return ch
}

func snapshot[T any](mb *MessageBus, subscribers map[int64]chan T) []chan T {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	out := make([]chan T, 0, len(subscribers))
	for _, ch := range subscribers {
		out = append(out, ch)
	}
	return out
}

// distribute раздаёт сообщения всем подписчикам. Отправка блокирующая:
// события одного канала должны дойти до обработчика без потерь и по порядку.
func distribute[T any](mb *MessageBus, in <-chan T, subscribers func() []chan T) {
	defer mb.done.Done()

	for {
		select {
		case <-mb.ctx.Done():
			return
		case msg := <-in:
			for _, ch := range subscribers() {
				select {
				case ch <- msg:
				case <-mb.ctx.Done():
					return
				}
			}
		}
	}
}
