package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatcore/internal/core"
)

func TestSendMessage_BumpsConversationAndSenderCursor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob")
	conv, _, err := env.svc.Conversations.FindOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	previous := conv.UpdatedAt
	for i := 0; i < 3; i++ {
		msg := env.send(t, conv.ID, ids[0], "ping")

		stored, err := env.store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, stored.UpdatedAt.After(previous), "send must bump updated_at")
		assert.False(t, stored.UpdatedAt.Before(msg.CreatedAt))
		previous = stored.UpdatedAt

		cursor, err := env.store.GetReadCursor(ctx, conv.ID, ids[0])
		require.NoError(t, err)
		assert.Equal(t, msg.ID, cursor.LastReadMessageID)
	}

	unread, err := env.svc.Presence.UnreadCount(ctx, conv.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestSendMessage_RejectedSendLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob", "mallory")
	conv, _, err := env.svc.Conversations.FindOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	_, err = env.svc.Delivery.SendMessage(ctx, conv.ID, ids[2], "let me in")
	assert.ErrorIs(t, err, core.ErrNotMember)
	_, err = env.svc.Delivery.SendMessage(ctx, conv.ID, ids[0], "   ")
	assert.ErrorIs(t, err, core.ErrInvalidContent)
	_, err = env.svc.Delivery.SendMessage(ctx, 9999, ids[0], "hello")
	assert.ErrorIs(t, err, core.ErrNotFound)

	n, err := env.store.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := env.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(conv.UpdatedAt))
}

func TestSendMessage_CompletesAfterCallerCancels(t *testing.T) {
	env := newTestEnv(t)
	ids := env.users(t, "alice", "bob")
	conv, _, err := env.svc.Conversations.FindOrCreateDirect(context.Background(), ids[0], ids[1])
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := env.svc.Delivery.SendMessage(ctx, conv.ID, ids[0], "still delivered")
	require.NoError(t, err)

	got, err := env.svc.Messages.Get(context.Background(), msg.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "still delivered", got.Content)
}

func TestSendMessage_ClearsSenderTyping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob")
	conv, _, err := env.svc.Conversations.FindOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	require.NoError(t, env.svc.Presence.SetTyping(ctx, conv.ID, ids[0], true))
	env.send(t, conv.ID, ids[0], "done typing")

	typing, err := env.svc.Presence.TypingUsers(ctx, conv.ID, ids[1])
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestDirectConversationScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.users(t, "alice", "bob")
	a, b := ids[0], ids[1]

	c1, created, err := env.svc.Conversations.FindOrCreateDirect(ctx, a, b)
	require.NoError(t, err)
	require.True(t, created)

	summary, err := env.svc.Conversations.Get(ctx, c1.ID, a)
	require.NoError(t, err)
	memberIDs := []int64{summary.Members[0].ID, summary.Members[1].ID}
	assert.ElementsMatch(t, []int64{a, b}, memberIDs)

	hi := env.send(t, c1.ID, b, "hi")

	bumped, err := env.store.GetConversation(ctx, c1.ID)
	require.NoError(t, err)
	assert.True(t, bumped.UpdatedAt.After(c1.UpdatedAt))

	unread, err := env.svc.Presence.UnreadCount(ctx, c1.ID, a)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	unread, err = env.svc.Presence.MarkRead(ctx, c1.ID, a, hi.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	require.NoError(t, env.svc.Messages.Delete(ctx, hi.ID, b))

	page, err := env.svc.Messages.List(ctx, c1.ID, a, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	unread, err = env.svc.Presence.UnreadCount(ctx, c1.ID, a)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}
