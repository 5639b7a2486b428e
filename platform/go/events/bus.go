package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/platform/go/metrics"
)

// Event is a named domain fact.
type Event interface {
	EventName() string
}

// Handler reacts to one event. Returning an error fails the publish call, which in turn rolls
// back the caller's transaction.
type Handler func(ctx context.Context, event Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus dispatches events synchronously, in subscription order, on the caller's goroutine and
// context. Handlers therefore run inside the publisher's transaction.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string][]subscriber
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger, subscribers: make(map[string][]subscriber)}
}

// Subscribe registers handler for eventName. name identifies the handler in logs and errors.
func (b *Bus) Subscribe(eventName, name string, handler Handler) {
	if handler == nil {
		panic("events: handler must not be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventName] = append(b.subscribers[eventName], subscriber{name: name, handler: handler})
}

func (b *Bus) SubscribersCount(eventName string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventName])
}

// Publish delivers each event to its subscribers. Every subscriber of an event runs even when
// an earlier one fails; errors and recovered panics are joined. Publishing stops at the first
// event that produced an error.
func (b *Bus) Publish(ctx context.Context, events ...Event) error {
	for _, event := range events {
		if err := b.publishOne(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) publishOne(ctx context.Context, event Event) error {
	name := event.EventName()

	b.mu.RLock()
	subs := append([]subscriber(nil), b.subscribers[name]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("event has no subscribers", zap.String("event", name))
		return nil
	}

	var errs []error
	for _, sub := range subs {
		if err := b.invoke(ctx, sub, event); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event", name),
				zap.String("handler", sub.name),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	metrics.ObserveEvent(name, err)
	return err
}

func (b *Bus) invoke(ctx context.Context, sub subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("events: handler %s panicked on %s: %v", sub.name, event.EventName(), r)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		return fmt.Errorf("events: handler %s on %s: %w", sub.name, event.EventName(), err)
	}
	return nil
}
