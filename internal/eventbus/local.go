// Package eventbus provides an in-process domain.SignalBus for single-node
// deployments that run without Redis.
package eventbus

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Local fans published payloads out to every subscriber whose channel
// pattern matches. Slow subscribers drop messages rather than block the
// publisher.
type Local struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewLocal creates an empty bus.
func NewLocal() *Local {
	return &Local{subs: make(map[*subscriber]struct{})}
}

// Publish implements domain.SignalBus.
func (b *Local) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe implements domain.SignalBus. channel may contain glob wildcards.
// The returned channel is closed when ctx is done.
func (b *Local) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()

	return s.ch, nil
}

var _ domain.SignalBus = (*Local)(nil)
