package messaging

import (
	"context"
	"sync"
)

// MemoryBus delivers messages synchronously to in-process subscribers. It
// backs the -bus=memory mode and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]Handler)}
}

// Publish encodes v and hands it to every current subscriber of topic, in
// subscription order, before returning.
func (b *MemoryBus) Publish(ctx context.Context, topic string, v any) error {
	msg, err := encode(topic, v)
	if err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := b.snapshot(topic)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = h
	return &memorySubscription{bus: b, topic: topic, id: id}, nil
}

// Close drops every subscription. Further calls fail with ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}

// snapshot returns topic handlers ordered by subscription id. Caller holds mu.
func (b *MemoryBus) snapshot(topic string) []Handler {
	subs := b.subs[topic]
	if len(subs) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(subs))
	for id := 0; id < b.nextID; id++ {
		if h, ok := subs[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

type memorySubscription struct {
	bus   *MemoryBus
	topic string
	id    int
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs[s.topic], s.id)
	return nil
}
