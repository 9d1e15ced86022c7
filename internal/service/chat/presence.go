package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/core"
	"github.com/vovakirdan/chatcore/internal/presence"
	"github.com/vovakirdan/chatcore/internal/store"
)

// Tracker keeps durable read cursors in the store and ephemeral typing hints
// in the typing backend.
type Tracker struct {
	store  store.Store
	typing presence.Typing
	ttl    time.Duration
	limit  *rateLimiter
	now    func() time.Time
	log    *zerolog.Logger
}

// MarkRead advances the user's read cursor to uptoMessageID, or to the latest
// message when uptoMessageID is 0. Moving backwards is a no-op. It returns
// the unread count after the update.
func (t *Tracker) MarkRead(ctx context.Context, conversationID, userID, uptoMessageID int64) (int, error) {
	_, member, err := requireMember(ctx, t.store, conversationID, userID, core.ErrNotMember)
	if err != nil {
		return 0, err
	}

	var target *store.Message
	if uptoMessageID == 0 {
		target, err = t.store.LastMessage(ctx, conversationID)
		if errors.Is(err, store.ErrNotFound) {
			// Nothing to read yet.
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("load last message: %w", err)
		}
	} else {
		target, err = t.store.GetMessage(ctx, uptoMessageID)
		if err != nil {
			return 0, mapStoreErr(err, "message %d", uptoMessageID)
		}
		if target.ConversationID != conversationID {
			return 0, fmt.Errorf("%w: message %d in conversation %d", core.ErrNotFound, uptoMessageID, conversationID)
		}
	}

	if err := t.store.AdvanceReadCursor(ctx, conversationID, userID, target.ID, t.now()); err != nil {
		return 0, err
	}
	return t.unreadFor(ctx, member)
}

// UnreadCount returns how many messages from other members the user has not read.
func (t *Tracker) UnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	_, member, err := requireMember(ctx, t.store, conversationID, userID, core.ErrNotMember)
	if err != nil {
		return 0, err
	}
	return t.unreadFor(ctx, member)
}

// unreadFor counts messages after the member's cursor that were sent by
// someone else on or after the member joined.
func (t *Tracker) unreadFor(ctx context.Context, member *store.Member) (int, error) {
	var afterID int64
	cursor, err := t.store.GetReadCursor(ctx, member.ConversationID, member.UserID)
	switch {
	case err == nil:
		afterID = cursor.LastReadMessageID
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("load read cursor: %w", err)
	}
	return t.store.CountUnread(ctx, member.ConversationID, member.UserID, afterID, member.JoinedAt)
}

// SetTyping records or clears a typing hint. Updates over the rate limit and
// backend failures are logged and dropped; membership failures are returned.
func (t *Tracker) SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) error {
	if _, _, err := requireMember(ctx, t.store, conversationID, userID, core.ErrNotMember); err != nil {
		return err
	}

	if isTyping && !t.limit.allow(typingKey{conversationID: conversationID, userID: userID}) {
		t.log.Debug().
			Int64("conversation_id", conversationID).
			Int64("user_id", userID).
			Msg("typing update rate limited")
		return nil
	}

	var err error
	if isTyping {
		err = t.typing.Set(ctx, conversationID, userID, t.now().Add(t.ttl))
	} else {
		err = t.typing.Clear(ctx, conversationID, userID)
	}
	if err != nil {
		t.log.Warn().Err(err).
			Int64("conversation_id", conversationID).
			Int64("user_id", userID).
			Bool("typing", isTyping).
			Msg("typing update dropped")
	}
	return nil
}

// TypingUsers lists the other members currently typing, in ascending id order.
func (t *Tracker) TypingUsers(ctx context.Context, conversationID, requesterID int64) ([]int64, error) {
	if _, _, err := requireMember(ctx, t.store, conversationID, requesterID, core.ErrNotMember); err != nil {
		return nil, err
	}

	active, err := t.typing.Active(ctx, conversationID, t.now())
	if err != nil {
		t.log.Warn().Err(err).Int64("conversation_id", conversationID).Msg("typing lookup failed")
		return []int64{}, nil
	}

	users := make([]int64, 0, len(active))
	for _, id := range active {
		if id != requesterID {
			users = append(users, id)
		}
	}
	return users, nil
}
