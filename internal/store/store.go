package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// User represents a user in the system.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation represents a direct or group conversation.
type Conversation struct {
	ID        int64
	Name      *string // only meaningful for groups
	IsGroup   bool
	DirectKey *string // for direct conversations: "dm:{minUserId}:{maxUserId}"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member represents conversation membership.
type Member struct {
	ConversationID int64
	UserID         int64
	JoinedAt       time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReadCursor is a user's high-water mark of seen messages in a conversation.
type ReadCursor struct {
	ConversationID    int64
	UserID            int64
	LastReadMessageID int64
	LastReadAt        time.Time
}

// ConversationStats is one conversation's activity as seen by a member.
type ConversationStats struct {
	ConversationID int64
	JoinedAt       time.Time
	MessageCount   int
	UnreadCount    int
	LastMessage    *Message // nil when the conversation has no messages
}

// ConversationCursor is a keyset position in a user's conversation list,
// which is ordered by (updated_at DESC, id DESC).
type ConversationCursor struct {
	UpdatedAt time.Time
	ID        int64
}

// MessageCursor is a keyset position in a conversation's message list,
// which is ordered by (created_at ASC, id ASC).
type MessageCursor struct {
	CreatedAt time.Time
	ID        int64
}

// DirectKey returns the dedup key for the unordered pair {a, b}.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// UserStore is the identity directory.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUsers resolves a set of ids. Unknown ids are absent from the result.
	GetUsers(ctx context.Context, ids []int64) (map[int64]*User, error)
}

// ConversationStore handles conversation and membership persistence.
type ConversationStore interface {
	// CreateConversation inserts conv and its members atomically and sets conv.ID.
	// Returns ErrConflict if conv.DirectKey is already taken.
	CreateConversation(ctx context.Context, conv *Conversation, memberIDs []int64) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// GetConversationByDirectKey retrieves a direct conversation by its key.
	GetConversationByDirectKey(ctx context.Context, directKey string) (*Conversation, error)

	// ListConversations lists a user's conversations, most recently active first.
	ListConversations(ctx context.Context, userID int64, after *ConversationCursor, limit int) ([]*Conversation, error)

	// UpdateConversationName sets or clears the stored name.
	UpdateConversationName(ctx context.Context, id int64, name *string) error

	// TouchConversation bumps updated_at to at least the given time, always
	// moving it strictly forward.
	TouchConversation(ctx context.Context, id int64, at time.Time) (time.Time, error)

	// DeleteConversation removes a conversation with its members, messages and cursors.
	DeleteConversation(ctx context.Context, id int64) error

	// AddMembers adds users to a conversation, ignoring existing members.
	AddMembers(ctx context.Context, conversationID int64, userIDs []int64, joinedAt time.Time) error

	// RemoveMember removes a user and reports whether a row was deleted.
	RemoveMember(ctx context.Context, conversationID, userID int64) (bool, error)

	// GetMember retrieves one membership row.
	GetMember(ctx context.Context, conversationID, userID int64) (*Member, error)

	// ListMembers lists members ordered by join time.
	ListMembers(ctx context.Context, conversationID int64) ([]*Member, error)

	// CountMembers returns the number of members.
	CountMembers(ctx context.Context, conversationID int64) (int, error)

	// ListMembersOf lists the members of several conversations at once,
	// keyed by conversation and ordered by join time.
	ListMembersOf(ctx context.Context, conversationIDs []int64) (map[int64][]*Member, error)

	// ConversationStats summarizes the given conversations for userID.
	// Conversations the user is not a member of are absent from the result.
	// Unread counting follows CountUnread.
	ConversationStats(ctx context.Context, userID int64, conversationIDs []int64) (map[int64]*ConversationStats, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists msg and sets msg.ID.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns up to limit messages after the cursor in (created_at, id) order.
	ListMessages(ctx context.Context, conversationID int64, after *MessageCursor, limit int) ([]*Message, error)

	// LastMessage returns the newest message of a conversation.
	LastMessage(ctx context.Context, conversationID int64) (*Message, error)

	// CountMessages returns the number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID int64) (int, error)

	// UpdateMessageContent rewrites content and updated_at.
	UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) error

	// DeleteMessage hard-deletes a message.
	DeleteMessage(ctx context.Context, id int64) error

	// CountUnread counts messages with id > afterID not sent by userID and
	// created at or after since.
	CountUnread(ctx context.Context, conversationID, userID, afterID int64, since time.Time) (int, error)
}

// ReadCursorStore handles read cursor persistence.
type ReadCursorStore interface {
	// AdvanceReadCursor moves the cursor to messageID. Backward moves are ignored.
	AdvanceReadCursor(ctx context.Context, conversationID, userID, messageID int64, at time.Time) error

	// GetReadCursor retrieves the cursor for a user in a conversation.
	GetReadCursor(ctx context.Context, conversationID, userID int64) (*ReadCursor, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	ReadCursorStore

	// WithTx runs fn inside one transaction. fn receives a Store bound to the
	// transaction; returning an error rolls everything back. Nested calls reuse
	// the outer transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Close closes the underlying database connection.
	Close() error
}
