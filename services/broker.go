package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const subscriberBuffer = 16

// Broker fans session updates out to everyone watching a session code.
type Broker interface {
	Publish(ctx context.Context, code string, payload []byte) error
	Subscribe(ctx context.Context, code string) (<-chan []byte, func(), error)
}

func sessionChannel(code string) string {
	return "quiznerds:session:" + code
}

type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, code string, payload []byte) error {
	if err := b.client.Publish(ctx, sessionChannel(code), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", code, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, code string) (<-chan []byte, func(), error) {
	pubsub := b.client.Subscribe(ctx, sessionChannel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", code, err)
	}

	out := make(chan []byte, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					slog.Warn("dropping session update for slow subscriber", "code", code)
				}
			}
		}
	}()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}
	return out, closeFn, nil
}

// LocalBroker is the in-process Broker used when Redis is not configured.
// Updates then only reach clients connected to the same instance.
type LocalBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[chan []byte]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, code string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[code] {
		select {
		case ch <- payload:
		default:
			slog.Warn("dropping session update for slow subscriber", "code", code)
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, code string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[code] == nil {
		b.subs[code] = make(map[chan []byte]struct{})
	}
	b.subs[code][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[code], ch)
			if len(b.subs[code]) == 0 {
				delete(b.subs, code)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, closeFn, nil
}
