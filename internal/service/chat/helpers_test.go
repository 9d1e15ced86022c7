package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcore/internal/presence"
	"github.com/vovakirdan/chatcore/internal/store"
	"github.com/vovakirdan/chatcore/internal/store/sqlite"
)

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store  *sqlite.SQLiteStore
	typing *presence.MemoryTyping
	clock  *stepClock
	svc    *Service
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := newTestStore(t)
	logger := zerolog.Nop()
	typing := presence.NewMemoryTyping(&logger)
	clock := newStepClock()

	return &testEnv{
		store:  st,
		typing: typing,
		clock:  clock,
		svc:    New(st, typing, Options{Now: clock.Now}, &logger),
	}
}

func (e *testEnv) users(t *testing.T, names ...string) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		u, err := e.store.CreateUser(context.Background(), name, name+"@example.com", "hash")
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	return ids
}

func (e *testEnv) send(t *testing.T, convID, senderID int64, content string) *store.Message {
	t.Helper()

	msg, err := e.svc.Delivery.SendMessage(context.Background(), convID, senderID, content)
	require.NoError(t, err)
	return msg
}

func (e *testEnv) sendN(t *testing.T, convID, senderID int64, n int) []*store.Message {
	t.Helper()

	msgs := make([]*store.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, e.send(t, convID, senderID, fmt.Sprintf("message %d", i)))
	}
	return msgs
}

// mockTyping is a typing backend whose behaviour is scripted per test.
type mockTyping struct {
	mock.Mock
}

func (m *mockTyping) Set(ctx context.Context, conversationID, userID int64, expiresAt time.Time) error {
	return m.Called(conversationID, userID).Error(0)
}

func (m *mockTyping) Clear(ctx context.Context, conversationID, userID int64) error {
	return m.Called(conversationID, userID).Error(0)
}

func (m *mockTyping) Active(ctx context.Context, conversationID int64, now time.Time) ([]int64, error) {
	args := m.Called(conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockTyping) Forget(ctx context.Context, conversationID int64) error {
	return m.Called(conversationID).Error(0)
}
