// Package chat is the conversation/message coordination engine: the
// conversation registry, the message log, the presence and read tracker, and
// the delivery coordinator that ties them together on send.
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

// DefaultTypingTTL is how long a typing hint stays visible without a refresh.
const DefaultTypingTTL = 5 * time.Second

// Options tunes the engine.
type Options struct {
	TypingTTL time.Duration
	// TypingRatePerMinute caps typing updates per user and conversation;
	// zero disables the cap.
	TypingRatePerMinute int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Service bundles the four engine components over one store.
type Service struct {
	Conversations *Registry
	Messages      *MessageLog
	Presence      *Tracker
	Delivery      *Coordinator
}

// New wires the engine components together.
func New(st store.Store, typing presence.Typing, opts Options, logger *zerolog.Logger) *Service {
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	clock := func() time.Time { return now().UTC() }

	messages := &MessageLog{store: st, now: clock}
	tracker := &Tracker{
		store:  st,
		typing: typing,
		ttl:    opts.TypingTTL,
		limit:  newRateLimiter(opts.TypingRatePerMinute, time.Minute, clock),
		now:    clock,
		log:    logger,
	}
	registry := &Registry{
		store:  st,
		typing: typing,
		now:    clock,
		log:    logger,
	}
	coordinator := &Coordinator{
		store:    st,
		messages: messages,
		typing:   typing,
		log:      logger,
	}

	return &Service{
		Conversations: registry,
		Messages:      messages,
		Presence:      tracker,
		Delivery:      coordinator,
	}
}

// requireMember loads the conversation and the user's membership row.
// Unknown conversations yield core.ErrNotFound; non-members yield denied.
func requireMember(ctx context.Context, st store.Store, conversationID, userID int64, denied error) (*store.Conversation, *store.Member, error) {
	conv, err := st.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, mapStoreErr(err, "conversation %d", conversationID)
	}

	member, err := st.GetMember(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: user %d in conversation %d", denied, userID, conversationID)
		}
		return nil, nil, fmt.Errorf("load membership: %w", err)
	}

	return conv, member, nil
}

// mapStoreErr translates store.ErrNotFound to core.ErrNotFound and wraps
// anything else as an internal failure.
func mapStoreErr(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
