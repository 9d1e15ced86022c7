package presence

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryTyping_ActiveFiltersExpired(t *testing.T) {
	logger := zerolog.Nop()
	m := NewMemoryTyping(&logger)
	ctx := context.Background()
	now := time.Now()

	_ = m.Set(ctx, 1, 20, now.Add(time.Second))
	_ = m.Set(ctx, 1, 10, now.Add(time.Second))
	_ = m.Set(ctx, 1, 30, now.Add(-time.Second))
	_ = m.Set(ctx, 2, 40, now.Add(time.Second))

	got, err := m.Active(ctx, 1, now)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if !reflect.DeepEqual(got, []int64{10, 20}) {
		t.Errorf("expected [10 20], got %v", got)
	}

	// Once the TTL passes nobody is typing.
	got, _ = m.Active(ctx, 1, now.Add(2*time.Second))
	if len(got) != 0 {
		t.Errorf("expected no active users after expiry, got %v", got)
	}
}

func TestMemoryTyping_ClearAndForget(t *testing.T) {
	m := NewMemoryTyping(nil)
	ctx := context.Background()
	now := time.Now()

	_ = m.Set(ctx, 1, 10, now.Add(time.Minute))
	_ = m.Set(ctx, 1, 20, now.Add(time.Minute))

	_ = m.Clear(ctx, 1, 10)
	got, _ := m.Active(ctx, 1, now)
	if !reflect.DeepEqual(got, []int64{20}) {
		t.Errorf("expected [20] after clear, got %v", got)
	}

	_ = m.Forget(ctx, 1)
	got, _ = m.Active(ctx, 1, now)
	if len(got) != 0 {
		t.Errorf("expected nothing after forget, got %v", got)
	}
}

func TestMemoryTyping_Sweep(t *testing.T) {
	m := NewMemoryTyping(nil)
	ctx := context.Background()
	now := time.Now()

	_ = m.Set(ctx, 1, 10, now.Add(-time.Second))
	_ = m.Set(ctx, 1, 20, now.Add(time.Minute))
	_ = m.Set(ctx, 2, 30, now.Add(-time.Second))

	if n := m.Sweep(now); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if _, ok := m.entries[2]; ok {
		t.Errorf("expected empty conversation bucket to be dropped")
	}
	if len(m.entries[1]) != 1 {
		t.Errorf("expected one live entry left, got %v", m.entries[1])
	}
}

func TestSweeper_RejectsBadSpec(t *testing.T) {
	if _, err := NewSweeper(NewMemoryTyping(nil), "not a schedule"); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}

	s, err := NewSweeper(NewMemoryTyping(nil), "@every 1s")
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	s.Start()
	s.Stop()
}

func TestRedisTyping(t *testing.T) {
	addr := os.Getenv("CHATCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATCORE_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	r := NewRedisTyping(client, time.Minute)
	const conv = int64(987654321)
	t.Cleanup(func() { _ = r.Forget(ctx, conv) })

	now := time.Now()
	if err := r.Set(ctx, conv, 2, now.Add(time.Minute)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := r.Set(ctx, conv, 1, now.Add(time.Minute)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := r.Set(ctx, conv, 3, now.Add(-time.Minute)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := r.Active(ctx, conv, now)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("expected [1 2], got %v", got)
	}

	if err := r.Clear(ctx, conv, 1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = r.Active(ctx, conv, now)
	if !reflect.DeepEqual(got, []int64{2}) {
		t.Errorf("expected [2], got %v", got)
	}
}
