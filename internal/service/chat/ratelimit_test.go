package chat

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcore/internal/presence"
)

func TestRateLimiter_FixedWindowPerKey(t *testing.T) {
	clock := newStepClock()
	clock.step = 0
	rl := newRateLimiter(2, time.Minute, clock.Now)

	a := typingKey{conversationID: 1, userID: 1}
	b := typingKey{conversationID: 1, userID: 2}

	assert.True(t, rl.allow(a))
	assert.True(t, rl.allow(a))
	assert.False(t, rl.allow(a))
	assert.True(t, rl.allow(b), "keys are limited independently")

	clock.Advance(time.Minute)
	assert.True(t, rl.allow(a), "a new window resets the count")
}

func TestRateLimiter_DisabledAllowsEverything(t *testing.T) {
	rl := newRateLimiter(0, time.Minute, time.Now)
	assert.Nil(t, rl)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.allow(typingKey{conversationID: 1, userID: 1}))
	}
}

func TestSetTyping_DropsUpdatesOverLimit(t *testing.T) {
	st := newTestStore(t)
	logger := zerolog.Nop()
	typing := new(mockTyping)
	svc := New(st, typing, Options{TypingRatePerMinute: 1}, &logger)
	ctx := context.Background()

	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	conv, _, err := svc.Conversations.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	typing.On("Set", conv.ID, alice.ID).Return(nil).Once()
	typing.On("Clear", conv.ID, alice.ID).Return(nil).Once()

	require.NoError(t, svc.Presence.SetTyping(ctx, conv.ID, alice.ID, true))
	require.NoError(t, svc.Presence.SetTyping(ctx, conv.ID, alice.ID, true))
	// Clearing is never limited.
	require.NoError(t, svc.Presence.SetTyping(ctx, conv.ID, alice.ID, false))

	typing.AssertExpectations(t)
	typing.AssertNumberOfCalls(t, "Set", 1)
}

var _ presence.Typing = (*mockTyping)(nil)
