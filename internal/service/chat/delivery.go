package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/presence"
	"github.com/vovakirdan/chatcore/internal/store"
)

// Coordinator is the only write path for new messages. A send appends the
// message, bumps the conversation and advances the sender's read cursor in
// one transaction.
type Coordinator struct {
	store    store.Store
	messages *MessageLog
	typing   presence.Typing
	log      *zerolog.Logger
}

// SendMessage delivers content from sender to the conversation.
func (c *Coordinator) SendMessage(ctx context.Context, conversationID, senderID int64, content string) (*store.Message, error) {
	// Once accepted, a send finishes even if the caller goes away.
	txCtx := context.WithoutCancel(ctx)

	var msg *store.Message
	err := c.store.WithTx(txCtx, func(tx store.Store) error {
		m, err := c.messages.append(txCtx, tx, conversationID, senderID, content)
		if err != nil {
			return err
		}
		if _, err := tx.TouchConversation(txCtx, conversationID, m.CreatedAt); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if err := tx.AdvanceReadCursor(txCtx, conversationID, senderID, m.ID, m.CreatedAt); err != nil {
			return fmt.Errorf("advance sender cursor: %w", err)
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.typing.Clear(txCtx, conversationID, senderID); err != nil {
		c.log.Warn().Err(err).
			Int64("conversation_id", conversationID).
			Int64("user_id", senderID).
			Msg("clear typing after send")
	}

	c.log.Debug().
		Int64("conversation_id", conversationID).
		Int64("message_id", msg.ID).
		Int64("sender_id", senderID).
		Msg("message sent")
	return msg, nil
}
