package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/chatcore/internal/store"
)

//go:embed schema.sql
var schema string

// Transactions take the write lock at BEGIN (_txlock=immediate) so
// read-then-write transactions on separate handles wait on busy_timeout.
const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
	q  querier
	tx bool
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db, q: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema to an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup so ":memory:" stays on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, q: db}, nil
}

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.tx {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside a transaction bound to a copy of the store.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(&SQLiteStore{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type scanner interface {
	Scan(dest ...any) error
}

// ==== UserStore implementation ====

const userColumns = `id, name, email, password_hash, created_at`

func scanUser(row scanner) (*store.User, error) {
	var (
		user      store.User
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	user.CreatedAt = fromNanos(createdAt)
	return &user, nil
}

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.q.ExecContext(ctx, query, name, email, passwordHash, nanos(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(s.q.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// GetUsers resolves a set of user ids.
func (s *SQLiteStore) GetUsers(ctx context.Context, ids []int64) (map[int64]*store.User, error) {
	users := make(map[int64]*store.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.q.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}

	return users, rows.Err()
}

// ==== ConversationStore implementation ====

const conversationColumns = `c.id, c.name, c.is_group, c.direct_key, c.created_at, c.updated_at`

func scanConversation(row scanner) (*store.Conversation, error) {
	var (
		conv                 store.Conversation
		name, directKey      sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &name, &conv.IsGroup, &directKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if name.Valid {
		conv.Name = &name.String
	}
	if directKey.Valid {
		conv.DirectKey = &directKey.String
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	return &conv, nil
}

// CreateConversation inserts a conversation and its initial members atomically.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *store.Conversation, memberIDs []int64) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	return s.WithTx(ctx, func(tx store.Store) error {
		txs := tx.(*SQLiteStore)

		query := `
			INSERT INTO conversations (name, is_group, direct_key, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`
		result, err := txs.q.ExecContext(ctx, query,
			conv.Name, conv.IsGroup, conv.DirectKey, nanos(conv.CreatedAt), nanos(conv.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert conversation: %w", store.ErrConflict)
			}
			return fmt.Errorf("insert conversation: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		if err := txs.AddMembers(ctx, id, memberIDs, conv.CreatedAt); err != nil {
			return err
		}

		conv.ID = id
		return nil
	})
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.id = ?`
	conv, err := scanConversation(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("conversation", err)
	}
	return conv, nil
}

// GetConversationByDirectKey retrieves a direct conversation by its direct_key.
func (s *SQLiteStore) GetConversationByDirectKey(ctx context.Context, directKey string) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.direct_key = ? AND c.is_group = 0`
	conv, err := scanConversation(s.q.QueryRowContext(ctx, query, directKey))
	if err != nil {
		return nil, notFound("conversation", err)
	}
	return conv, nil
}

// ListConversations lists a user's conversations ordered by (updated_at DESC, id DESC).
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64, after *store.ConversationCursor, limit int) ([]*store.Conversation, error) {
	var (
		query string
		args  []any
	)

	if after != nil {
		query = `
			SELECT ` + conversationColumns + `
			FROM conversations c
			JOIN conversation_members m ON m.conversation_id = c.id
			WHERE m.user_id = ?
			  AND (c.updated_at < ? OR (c.updated_at = ? AND c.id < ?))
			ORDER BY c.updated_at DESC, c.id DESC
			LIMIT ?
		`
		at := nanos(after.UpdatedAt)
		args = []any{userID, at, at, after.ID, limit}
	} else {
		query = `
			SELECT ` + conversationColumns + `
			FROM conversations c
			JOIN conversation_members m ON m.conversation_id = c.id
			WHERE m.user_id = ?
			ORDER BY c.updated_at DESC, c.id DESC
			LIMIT ?
		`
		args = []any{userID, limit}
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// UpdateConversationName sets or clears the stored name.
func (s *SQLiteStore) UpdateConversationName(ctx context.Context, id int64, name *string) error {
	result, err := s.q.ExecContext(ctx, `UPDATE conversations SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update conversation name: %w", err)
	}
	return requireAffected(result, "conversation")
}

// TouchConversation moves updated_at strictly forward, to at least at.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id int64, at time.Time) (time.Time, error) {
	query := `
		UPDATE conversations
		SET updated_at = MAX(updated_at + 1, ?)
		WHERE id = ?
		RETURNING updated_at
	`
	var updatedAt int64
	if err := s.q.QueryRowContext(ctx, query, nanos(at), id).Scan(&updatedAt); err != nil {
		return time.Time{}, notFound("conversation", err)
	}
	return fromNanos(updatedAt), nil
}

// DeleteConversation removes a conversation and everything hanging off it.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx store.Store) error {
		txs := tx.(*SQLiteStore)

		for _, q := range []string{
			`DELETE FROM read_cursors WHERE conversation_id = ?`,
			`DELETE FROM messages WHERE conversation_id = ?`,
			`DELETE FROM conversation_members WHERE conversation_id = ?`,
		} {
			if _, err := txs.q.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete conversation data: %w", err)
			}
		}

		result, err := txs.q.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return requireAffected(result, "conversation")
	})
}

// AddMembers adds users to a conversation, ignoring existing members.
func (s *SQLiteStore) AddMembers(ctx context.Context, conversationID int64, userIDs []int64, joinedAt time.Time) error {
	query := `
		INSERT OR IGNORE INTO conversation_members (conversation_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	for _, userID := range userIDs {
		if _, err := s.q.ExecContext(ctx, query, conversationID, userID, nanos(joinedAt)); err != nil {
			return fmt.Errorf("insert member %d: %w", userID, err)
		}
	}
	return nil
}

// RemoveMember removes a user from a conversation.
func (s *SQLiteStore) RemoveMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	query := `
		DELETE FROM conversation_members
		WHERE conversation_id = ? AND user_id = ?
	`
	result, err := s.q.ExecContext(ctx, query, conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("delete member: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetMember retrieves one membership row.
func (s *SQLiteStore) GetMember(ctx context.Context, conversationID, userID int64) (*store.Member, error) {
	query := `
		SELECT conversation_id, user_id, joined_at
		FROM conversation_members
		WHERE conversation_id = ? AND user_id = ?
	`
	var (
		m        store.Member
		joinedAt int64
	)
	if err := s.q.QueryRowContext(ctx, query, conversationID, userID).Scan(&m.ConversationID, &m.UserID, &joinedAt); err != nil {
		return nil, notFound("member", err)
	}
	m.JoinedAt = fromNanos(joinedAt)
	return &m, nil
}

// ListMembers lists all members of a conversation.
func (s *SQLiteStore) ListMembers(ctx context.Context, conversationID int64) ([]*store.Member, error) {
	query := `
		SELECT conversation_id, user_id, joined_at
		FROM conversation_members
		WHERE conversation_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*store.Member
	for rows.Next() {
		var (
			m        store.Member
			joinedAt int64
		)
		if err := rows.Scan(&m.ConversationID, &m.UserID, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = fromNanos(joinedAt)
		members = append(members, &m)
	}

	return members, rows.Err()
}

// CountMembers returns the number of members in a conversation.
func (s *SQLiteStore) CountMembers(ctx context.Context, conversationID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM conversation_members WHERE conversation_id = ?`
	if err := s.q.QueryRowContext(ctx, query, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// ListMembersOf lists members of several conversations in one query.
func (s *SQLiteStore) ListMembersOf(ctx context.Context, conversationIDs []int64) (map[int64][]*store.Member, error) {
	members := make(map[int64][]*store.Member, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return members, nil
	}

	query := `
		SELECT conversation_id, user_id, joined_at
		FROM conversation_members
		WHERE conversation_id IN (` + placeholders(len(conversationIDs)) + `)
		ORDER BY conversation_id, joined_at ASC, user_id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, int64Args(conversationIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m        store.Member
			joinedAt int64
		)
		if err := rows.Scan(&m.ConversationID, &m.UserID, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = fromNanos(joinedAt)
		members[m.ConversationID] = append(members[m.ConversationID], &m)
	}

	return members, rows.Err()
}

// ConversationStats computes counts and the last message id for a page of
// conversations in one query, then loads the last messages in a second.
func (s *SQLiteStore) ConversationStats(ctx context.Context, userID int64, conversationIDs []int64) (map[int64]*store.ConversationStats, error) {
	stats := make(map[int64]*store.ConversationStats, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return stats, nil
	}

	query := `
		SELECT m.conversation_id, m.joined_at,
		       (SELECT COUNT(*) FROM messages x WHERE x.conversation_id = m.conversation_id),
		       (SELECT COUNT(*) FROM messages x
		         WHERE x.conversation_id = m.conversation_id
		           AND x.id > COALESCE(rc.last_read_message_id, 0)
		           AND x.sender_id <> m.user_id
		           AND x.created_at >= m.joined_at),
		       (SELECT x.id FROM messages x
		         WHERE x.conversation_id = m.conversation_id
		         ORDER BY x.created_at DESC, x.id DESC
		         LIMIT 1)
		FROM conversation_members m
		LEFT JOIN read_cursors rc
		       ON rc.conversation_id = m.conversation_id AND rc.user_id = m.user_id
		WHERE m.user_id = ?
		  AND m.conversation_id IN (` + placeholders(len(conversationIDs)) + `)
	`
	args := append([]any{userID}, int64Args(conversationIDs)...)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation stats: %w", err)
	}
	defer rows.Close()

	lastIDs := make([]int64, 0, len(conversationIDs))
	for rows.Next() {
		var (
			st       store.ConversationStats
			joinedAt int64
			lastID   sql.NullInt64
		)
		if err := rows.Scan(&st.ConversationID, &joinedAt, &st.MessageCount, &st.UnreadCount, &lastID); err != nil {
			return nil, fmt.Errorf("scan conversation stats: %w", err)
		}
		st.JoinedAt = fromNanos(joinedAt)
		stats[st.ConversationID] = &st
		if lastID.Valid {
			lastIDs = append(lastIDs, lastID.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(lastIDs) == 0 {
		return stats, nil
	}

	msgRows, err := s.q.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id IN (`+placeholders(len(lastIDs))+`)`,
		int64Args(lastIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query last messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		msg, err := scanMessage(msgRows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if st, ok := stats[msg.ConversationID]; ok {
			st.LastMessage = msg
		}
	}
	return stats, msgRows.Err()
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ==== MessageStore implementation ====

const messageColumns = `id, conversation_id, sender_id, content, created_at, updated_at`

func scanMessage(row scanner) (*store.Message, error) {
	var (
		msg                  store.Message
		createdAt, updatedAt int64
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	msg.CreatedAt = fromNanos(createdAt)
	msg.UpdatedAt = fromNanos(updatedAt)
	return &msg, nil
}

// CreateMessage persists a message to storage.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}

	query := `
		INSERT INTO messages (conversation_id, sender_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.q.ExecContext(ctx, query,
		msg.ConversationID, msg.SenderID, msg.Content, nanos(msg.CreatedAt), nanos(msg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	msg, err := scanMessage(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("message", err)
	}
	return msg, nil
}

// ListMessages retrieves messages in ascending (created_at, id) order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, after *store.MessageCursor, limit int) ([]*store.Message, error) {
	var (
		query string
		args  []any
	)

	if after != nil {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = ?
			  AND (created_at > ? OR (created_at = ? AND id > ?))
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		`
		at := nanos(after.CreatedAt)
		args = []any{conversationID, at, at, after.ID, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		`
		args = []any{conversationID, limit}
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// LastMessage returns the newest message of a conversation.
func (s *SQLiteStore) LastMessage(ctx context.Context, conversationID int64) (*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	msg, err := scanMessage(s.q.QueryRowContext(ctx, query, conversationID))
	if err != nil {
		return nil, notFound("message", err)
	}
	return msg, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`
	if err := s.q.QueryRowContext(ctx, query, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// UpdateMessageContent rewrites a message body.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) error {
	query := `UPDATE messages SET content = ?, updated_at = ? WHERE id = ?`
	result, err := s.q.ExecContext(ctx, query, content, nanos(at), id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return requireAffected(result, "message")
}

// DeleteMessage hard-deletes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(result, "message")
}

// CountUnread counts messages from others after a cursor position.
func (s *SQLiteStore) CountUnread(ctx context.Context, conversationID, userID, afterID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = ?
		  AND id > ?
		  AND sender_id <> ?
		  AND created_at >= ?
	`
	var n int
	if err := s.q.QueryRowContext(ctx, query, conversationID, afterID, userID, nanos(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// ==== ReadCursorStore implementation ====

// AdvanceReadCursor upserts the cursor; the WHERE clause keeps it monotonic.
func (s *SQLiteStore) AdvanceReadCursor(ctx context.Context, conversationID, userID, messageID int64, at time.Time) error {
	query := `
		INSERT INTO read_cursors (conversation_id, user_id, last_read_message_id, last_read_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
		SET last_read_message_id = excluded.last_read_message_id,
		    last_read_at = excluded.last_read_at
		WHERE excluded.last_read_message_id > read_cursors.last_read_message_id
	`
	if _, err := s.q.ExecContext(ctx, query, conversationID, userID, messageID, nanos(at)); err != nil {
		return fmt.Errorf("upsert read cursor: %w", err)
	}
	return nil
}

// GetReadCursor retrieves the cursor for a user in a conversation.
func (s *SQLiteStore) GetReadCursor(ctx context.Context, conversationID, userID int64) (*store.ReadCursor, error) {
	query := `
		SELECT conversation_id, user_id, last_read_message_id, last_read_at
		FROM read_cursors
		WHERE conversation_id = ? AND user_id = ?
	`
	var (
		rc         store.ReadCursor
		lastReadAt int64
	)
	err := s.q.QueryRowContext(ctx, query, conversationID, userID).Scan(
		&rc.ConversationID,
		&rc.UserID,
		&rc.LastReadMessageID,
		&lastReadAt,
	)
	if err != nil {
		return nil, notFound("read cursor", err)
	}
	rc.LastReadAt = fromNanos(lastReadAt)
	return &rc, nil
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

var _ store.Store = (*SQLiteStore)(nil)
