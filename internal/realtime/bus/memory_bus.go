package bus

import (
	"context"
	"sync"
)

type memorySub struct {
	ctx   context.Context
	onMsg func([]byte)
}

type memoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

// NewMemoryBus delivers synchronously within one process. Used when Redis is not configured.
func NewMemoryBus() Bus {
	return &memoryBus{subs: map[string][]*memorySub{}}
}

func (b *memoryBus) Publish(ctx context.Context, channel string, msg any) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	subs := append([]*memorySub(nil), b.subs[channel]...)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.ctx.Err() != nil {
			continue
		}
		s.onMsg(append([]byte(nil), raw...))
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, channel string, onMsg func(payload []byte)) error {
	s := &memorySub{ctx: ctx, onMsg: onMsg}
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], s)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[channel]
		for i, cur := range list {
			if cur == s {
				b.subs[channel] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = map[string][]*memorySub{}
	b.mu.Unlock()
	return nil
}
