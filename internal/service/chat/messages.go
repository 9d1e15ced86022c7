package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/chatcore/internal/core"
	"github.com/vovakirdan/chatcore/internal/store"
)

// MaxContentLength is the longest message body accepted, in characters.
const MaxContentLength = 10000

// MessageLog owns the ordered, per-conversation message history.
// New messages enter only through Coordinator.SendMessage.
type MessageLog struct {
	store store.Store
	now   func() time.Time
}

func validateContent(content string) error {
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", core.ErrInvalidContent)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", core.ErrInvalidContent)
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return fmt.Errorf("%w: content is %d characters, max %d", core.ErrInvalidContent, n, MaxContentLength)
	}
	return nil
}

// append persists a new message through tx. The sender must currently be a member.
func (l *MessageLog) append(ctx context.Context, tx store.Store, conversationID, senderID int64, content string) (*store.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if _, _, err := requireMember(ctx, tx, conversationID, senderID, core.ErrNotMember); err != nil {
		return nil, err
	}

	// created_at never runs behind the newest message, so (created_at, id)
	// order matches insertion order.
	at := l.now()
	prev, err := tx.LastMessage(ctx, conversationID)
	switch {
	case err == nil:
		if at.Before(prev.CreatedAt) {
			at = prev.CreatedAt
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load last message: %w", err)
	}

	msg := &store.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
	if err := tx.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// List returns one page of a conversation's messages, oldest first.
func (l *MessageLog) List(ctx context.Context, conversationID, requesterID int64, pageToken string) (*Page[*store.Message], error) {
	after, err := messageCursor(pageToken)
	if err != nil {
		return nil, err
	}
	if _, _, err := requireMember(ctx, l.store, conversationID, requesterID, core.ErrForbidden); err != nil {
		return nil, err
	}

	msgs, err := l.store.ListMessages(ctx, conversationID, after, MessagePageSize+1)
	if err != nil {
		return nil, err
	}

	page := &Page[*store.Message]{Items: msgs}
	if len(msgs) > MessagePageSize {
		page.Items = msgs[:MessagePageSize]
		last := page.Items[len(page.Items)-1]
		page.NextPageToken = encodePageToken(last.CreatedAt, last.ID)
	}
	if page.Items == nil {
		page.Items = []*store.Message{}
	}
	return page, nil
}

// Get returns a single message to a member of its conversation.
func (l *MessageLog) Get(ctx context.Context, messageID, requesterID int64) (*store.Message, error) {
	msg, err := l.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, mapStoreErr(err, "message %d", messageID)
	}
	if _, _, err := requireMember(ctx, l.store, msg.ConversationID, requesterID, core.ErrNotMember); err != nil {
		return nil, err
	}
	return msg, nil
}

// Edit replaces a message's content. Only the sender may edit; ordering and
// conversation recency are untouched.
func (l *MessageLog) Edit(ctx context.Context, messageID, requesterID int64, content string) (*store.Message, error) {
	msg, err := l.authorOnly(ctx, messageID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	at := l.now()
	if !at.After(msg.UpdatedAt) {
		at = msg.UpdatedAt.Add(time.Nanosecond)
	}
	if err := l.store.UpdateMessageContent(ctx, messageID, content, at); err != nil {
		return nil, mapStoreErr(err, "message %d", messageID)
	}

	msg.Content = content
	msg.UpdatedAt = at
	return msg, nil
}

// Delete hard-deletes a message. Only the sender may delete.
func (l *MessageLog) Delete(ctx context.Context, messageID, requesterID int64) error {
	if _, err := l.authorOnly(ctx, messageID, requesterID); err != nil {
		return err
	}
	if err := l.store.DeleteMessage(ctx, messageID); err != nil {
		return mapStoreErr(err, "message %d", messageID)
	}
	return nil
}

func (l *MessageLog) authorOnly(ctx context.Context, messageID, requesterID int64) (*store.Message, error) {
	msg, err := l.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, mapStoreErr(err, "message %d", messageID)
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("%w: message %d belongs to another user", core.ErrForbidden, messageID)
	}
	return msg, nil
}
