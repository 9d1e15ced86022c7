package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcore/internal/core"
)

func TestMarkRead_UnreadCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob", "mallory")
	a, b := ids[0], ids[1]
	conv, _, err := env.svc.Conversations.FindOrCreateDirect(ctx, a, b)
	require.NoError(t, err)

	env.send(t, conv.ID, a, "own messages never count")
	msgs := env.sendN(t, conv.ID, b, 3)

	unread, err := env.svc.Presence.UnreadCount(ctx, conv.ID, a)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	unread, err = env.svc.Presence.MarkRead(ctx, conv.ID, a, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	// Backwards moves are ignored.
	unread, err = env.svc.Presence.MarkRead(ctx, conv.ID, a, msgs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
	unread, err = env.svc.Presence.MarkRead(ctx, conv.ID, a, msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	env.send(t, conv.ID, b, "new")
	unread, err = env.svc.Presence.UnreadCount(ctx, conv.ID, a)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	// Replying marks everything before the reply as read.
	env.send(t, conv.ID, a, "reply")
	unread, err = env.svc.Presence.UnreadCount(ctx, conv.ID, a)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	env.send(t, conv.ID, b, "newer")
	unread, err = env.svc.Presence.MarkRead(ctx, conv.ID, a, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	_, err = env.svc.Presence.MarkRead(ctx, conv.ID, ids[2], 0)
	assert.ErrorIs(t, err, core.ErrNotMember)
	_, err = env.svc.Presence.MarkRead(ctx, conv.ID, a, 9999)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = env.svc.Presence.UnreadCount(ctx, 9999, a)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMarkRead_MessageFromOtherConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob", "carol")

	ab, _, err := env.svc.Conversations.FindOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)
	ac, _, err := env.svc.Conversations.FindOrCreateDirect(ctx, ids[0], ids[2])
	require.NoError(t, err)
	other := env.send(t, ac.ID, ids[2], "elsewhere")

	_, err = env.svc.Presence.MarkRead(ctx, ab.ID, ids[0], other.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	unread, err := env.svc.Presence.MarkRead(ctx, ab.ID, ids[0], 0)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestTyping_VisibleToOthersUntilExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob", "carol", "mallory")
	conv, err := env.svc.Conversations.CreateGroup(ctx, ids[0], []int64{ids[1], ids[2]}, "")
	require.NoError(t, err)

	require.NoError(t, env.svc.Presence.SetTyping(ctx, conv.ID, ids[1], true))
	require.NoError(t, env.svc.Presence.SetTyping(ctx, conv.ID, ids[2], true))

	typing, err := env.svc.Presence.TypingUsers(ctx, conv.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[2]}, typing)

	require.NoError(t, env.svc.Presence.SetTyping(ctx, conv.ID, ids[2], false))
	typing, err = env.svc.Presence.TypingUsers(ctx, conv.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1]}, typing)

	env.clock.Advance(DefaultTypingTTL)
	typing, err = env.svc.Presence.TypingUsers(ctx, conv.ID, ids[0])
	require.NoError(t, err)
	assert.Empty(t, typing)

	assert.ErrorIs(t, env.svc.Presence.SetTyping(ctx, conv.ID, ids[3], true), core.ErrNotMember)
	_, err = env.svc.Presence.TypingUsers(ctx, conv.ID, ids[3])
	assert.ErrorIs(t, err, core.ErrNotMember)
}

func TestTyping_BackendFailuresAreDropped(t *testing.T) {
	st := newTestStore(t)
	logger := zerolog.Nop()
	typing := new(mockTyping)
	svc := New(st, typing, Options{TypingTTL: time.Second}, &logger)
	ctx := context.Background()

	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	conv, _, err := svc.Conversations.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	backendDown := errors.New("backend down")
	typing.On("Set", conv.ID, alice.ID).Return(backendDown)
	typing.On("Active", conv.ID).Return(nil, backendDown)
	typing.On("Clear", conv.ID, alice.ID).Return(backendDown)

	assert.NoError(t, svc.Presence.SetTyping(ctx, conv.ID, alice.ID, true))
	users, err := svc.Presence.TypingUsers(ctx, conv.ID, bob.ID)
	assert.NoError(t, err)
	assert.Empty(t, users)

	// A failing typing clear never fails a send.
	_, err = svc.Delivery.SendMessage(ctx, conv.ID, alice.ID, "hi")
	assert.NoError(t, err)

	typing.AssertExpectations(t)
	typing.AssertNotCalled(t, "Forget", mock.Anything)
}
