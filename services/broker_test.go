package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ""
}

func testBroker(t *testing.T, b Broker) {
	ctx := context.Background()

	a, closeA, err := b.Subscribe(ctx, "ROOM01")
	if err != nil {
		t.Fatal(err)
	}
	other, closeOther, err := b.Subscribe(ctx, "ROOM02")
	if err != nil {
		t.Fatal(err)
	}
	defer closeOther()

	if err := b.Publish(ctx, "ROOM01", []byte(`{"type":"joined"}`)); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, a); got != `{"type":"joined"}` {
		t.Fatalf("got %q", got)
	}

	select {
	case msg := <-other:
		t.Fatalf("update leaked to another session: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	closeA()
	closeA()
	if err := b.Publish(ctx, "ROOM01", []byte("after close")); err != nil {
		t.Fatal(err)
	}
}

func TestLocalBroker(t *testing.T) {
	b := NewLocalBroker()
	testBroker(t, b)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.subs["ROOM01"]; ok {
		t.Fatal("closed subscription was not removed")
	}
}

func TestRedisBroker(t *testing.T) {
	_, client := newRedis(t)
	testBroker(t, NewRedisBroker(client))
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, _ := l.Allow(ctx, "1.2.3.4", 3, time.Minute)
		if !ok {
			t.Fatalf("hit %d rejected", i+1)
		}
	}
	ok, reset, _ := l.Allow(ctx, "1.2.3.4", 3, time.Minute)
	if ok || reset != time.Minute {
		t.Fatalf("fourth hit: ok=%v reset=%v", ok, reset)
	}
	if ok, _, _ := l.Allow(ctx, "5.6.7.8", 3, time.Minute); !ok {
		t.Fatal("limits should be per key")
	}

	clock = clock.Add(time.Minute)
	if ok, _, _ := l.Allow(ctx, "1.2.3.4", 3, time.Minute); !ok {
		t.Fatal("window should reset")
	}
}

func TestRedisLimiter(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, err := l.Allow(ctx, "ip", 2, time.Minute); !ok || err != nil {
			t.Fatalf("hit %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, reset, err := l.Allow(ctx, "ip", 2, time.Minute)
	if ok || err != nil {
		t.Fatalf("third hit: ok=%v err=%v", ok, err)
	}
	if reset <= 0 || reset > time.Minute {
		t.Fatalf("reset = %v", reset)
	}

	mr.FastForward(61 * time.Second)
	if ok, _, _ := l.Allow(ctx, "ip", 2, time.Minute); !ok {
		t.Fatal("window should expire")
	}
}

func TestRedisLimiterSetsExpiryWithFirstHit(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client)

	if _, _, err := l.Allow(context.Background(), "198.51.100.9", 5, 30*time.Second); err != nil {
		t.Fatal(err)
	}
	k := "quiznerds:ratelimit:198.51.100.9"
	if got, _ := mr.Get(k); got != "1" {
		t.Fatalf("counter = %q", got)
	}
	if ttl := mr.TTL(k); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("ttl = %v", ttl)
	}
}
