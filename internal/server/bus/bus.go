// Package bus fans chat events out to every server replica.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
	"github.com/cloudzz-dev/memberchat/internal/server/models"
)

type Bus interface {
	Publish(ctx context.Context, ev models.Event) error
	StartForwarder(ctx context.Context, onMsg func(ev models.Event)) error
	Close() error
}

// New returns a Redis bus when addr is set, otherwise an in-process bus.
func New(log *logger.Logger, addr, channel string) (Bus, error) {
	if addr == "" {
		log.Info("event bus: in-process")
		return NewLocal(), nil
	}
	return NewRedisBus(log, addr, channel)
}

type localBus struct {
	mu   sync.RWMutex
	subs []func(models.Event)
}

// NewLocal delivers events synchronously within this process.
func NewLocal() Bus {
	return &localBus{}
}

func (b *localBus) Publish(ctx context.Context, ev models.Event) error {
	b.mu.RLock()
	subs := append([]func(models.Event){}, b.subs...)
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(ev models.Event)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}
	b.mu.Lock()
	b.subs = append(b.subs, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *localBus) Close() error { return nil }
