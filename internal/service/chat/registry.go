package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/chatcore/internal/core"
	"github.com/vovakirdan/chatcore/internal/presence"
	"github.com/vovakirdan/chatcore/internal/store"
)

// MaxNameLength is the longest group name accepted, in characters.
const MaxNameLength = 255

// UnknownName is shown for a direct conversation whose peer cannot be resolved.
const UnknownName = "Unknown"

// Registry owns conversations and their membership.
type Registry struct {
	store  store.Store
	typing presence.Typing
	now    func() time.Time
	log    *zerolog.Logger

	direct singleflight.Group
}

// ConversationSummary is a conversation as seen by one member.
type ConversationSummary struct {
	Conversation *store.Conversation
	Members      []*store.User
	DisplayName  string
	LastMessage  *store.Message
	MessageCount int
	UnreadCount  int
}

type directResult struct {
	conv    *store.Conversation
	created bool
}

// FindOrCreateDirect returns the one direct conversation between userA and
// userB, creating it when absent. created reports whether this call created it.
func (r *Registry) FindOrCreateDirect(ctx context.Context, userA, userB int64) (*store.Conversation, bool, error) {
	if userA == userB {
		return nil, false, fmt.Errorf("%w: cannot open a direct conversation with yourself", core.ErrInvalidMembership)
	}
	if err := r.requireUsers(ctx, []int64{userA, userB}); err != nil {
		return nil, false, err
	}

	key := store.DirectKey(userA, userB)
	// Coalesced callers share one result, so the work must outlive the caller
	// that started it. Only that caller reports the creation.
	var leader bool
	v, err, _ := r.direct.Do(key, func() (any, error) {
		leader = true
		return r.findOrCreateDirect(context.WithoutCancel(ctx), key, userA, userB)
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(directResult)
	return res.conv, res.created && leader, nil
}

func (r *Registry) findOrCreateDirect(ctx context.Context, key string, userA, userB int64) (directResult, error) {
	conv, err := r.store.GetConversationByDirectKey(ctx, key)
	if err == nil {
		return directResult{conv: conv}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return directResult{}, fmt.Errorf("lookup direct conversation: %w", err)
	}

	now := r.now()
	conv = &store.Conversation{
		IsGroup:   false,
		DirectKey: &key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = r.store.CreateConversation(ctx, conv, []int64{userA, userB})
	if err == nil {
		r.log.Debug().Int64("conversation_id", conv.ID).Str("direct_key", key).Msg("direct conversation created")
		return directResult{conv: conv, created: true}, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return directResult{}, fmt.Errorf("create direct conversation: %w", err)
	}

	// Another writer won the insert. Read the winner back once.
	race := fmt.Errorf("%w: %s", core.ErrConflictRace, key)
	r.log.Debug().Err(race).Msg("resolving direct conversation race")

	conv, err = r.store.GetConversationByDirectKey(ctx, key)
	if err != nil {
		return directResult{}, fmt.Errorf("reload direct conversation after race: %w", err)
	}
	return directResult{conv: conv}, nil
}

// CreateGroup creates a group conversation holding the creator and memberIDs.
func (r *Registry) CreateGroup(ctx context.Context, creatorID int64, memberIDs []int64, name string) (*store.Conversation, error) {
	stored, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	ids := dedupe(append([]int64{creatorID}, memberIDs...))
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two distinct members", core.ErrInvalidMembership)
	}
	if err := r.requireUsers(ctx, ids); err != nil {
		return nil, err
	}

	now := r.now()
	conv := &store.Conversation{
		Name:      stored,
		IsGroup:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateConversation(ctx, conv, ids); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	r.log.Debug().Int64("conversation_id", conv.ID).Int("members", len(ids)).Msg("group created")
	return conv, nil
}

// ListForUser returns one page of the user's conversations, most recently
// active first.
func (r *Registry) ListForUser(ctx context.Context, userID int64, pageToken string) (*Page[*ConversationSummary], error) {
	after, err := conversationCursor(pageToken)
	if err != nil {
		return nil, err
	}

	convs, err := r.store.ListConversations(ctx, userID, after, ConversationPageSize+1)
	if err != nil {
		return nil, err
	}

	page := &Page[*ConversationSummary]{Items: make([]*ConversationSummary, 0, len(convs))}
	if len(convs) > ConversationPageSize {
		convs = convs[:ConversationPageSize]
		last := convs[len(convs)-1]
		page.NextPageToken = encodePageToken(last.UpdatedAt, last.ID)
	}

	if page.Items, err = r.summarize(ctx, userID, convs); err != nil {
		return nil, err
	}
	return page, nil
}

// Get returns a conversation summary for one of its members.
func (r *Registry) Get(ctx context.Context, conversationID, userID int64) (*ConversationSummary, error) {
	conv, _, err := requireMember(ctx, r.store, conversationID, userID, core.ErrNotMember)
	if err != nil {
		return nil, err
	}
	summaries, err := r.summarize(ctx, userID, []*store.Conversation{conv})
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: user %d in conversation %d", core.ErrNotMember, userID, conversationID)
	}
	return summaries[0], nil
}

// Leave removes the user from the conversation. A direct conversation is
// deleted on any leave; a group is deleted when its last member leaves.
func (r *Registry) Leave(ctx context.Context, conversationID, userID int64) error {
	var deleted bool
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		conv, _, err := requireMember(ctx, tx, conversationID, userID, core.ErrNotMember)
		if err != nil {
			return err
		}

		if !conv.IsGroup {
			deleted = true
			return tx.DeleteConversation(ctx, conversationID)
		}

		removed, err := tx.RemoveMember(ctx, conversationID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: user %d in conversation %d", core.ErrNotMember, userID, conversationID)
		}

		remaining, err := tx.CountMembers(ctx, conversationID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			deleted = true
			return tx.DeleteConversation(ctx, conversationID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if deleted {
		err = r.typing.Forget(ctx, conversationID)
	} else {
		err = r.typing.Clear(ctx, conversationID, userID)
	}
	if err != nil {
		r.log.Warn().Err(err).Int64("conversation_id", conversationID).Msg("typing cleanup after leave")
	}

	r.log.Debug().
		Int64("conversation_id", conversationID).
		Int64("user_id", userID).
		Bool("deleted", deleted).
		Msg("member left")
	return nil
}

// Rename sets a group's name; an empty name clears it. Renaming a direct
// conversation is accepted and ignored.
func (r *Registry) Rename(ctx context.Context, conversationID, userID int64, name string) (*store.Conversation, error) {
	conv, _, err := requireMember(ctx, r.store, conversationID, userID, core.ErrForbidden)
	if err != nil {
		return nil, err
	}
	stored, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return conv, nil
	}

	if err := r.store.UpdateConversationName(ctx, conversationID, stored); err != nil {
		return nil, mapStoreErr(err, "conversation %d", conversationID)
	}
	conv.Name = stored
	return conv, nil
}

// AddMembers adds users to a group. Users already in the group are ignored.
func (r *Registry) AddMembers(ctx context.Context, conversationID, actorID int64, userIDs []int64) error {
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return fmt.Errorf("%w: no users to add", core.ErrInvalidMembership)
	}
	if err := r.requireUsers(ctx, ids); err != nil {
		return err
	}

	return r.store.WithTx(ctx, func(tx store.Store) error {
		conv, _, err := requireMember(ctx, tx, conversationID, actorID, core.ErrForbidden)
		if err != nil {
			return err
		}
		if !conv.IsGroup {
			return fmt.Errorf("%w: direct conversations have exactly two members", core.ErrInvalidMembership)
		}
		return tx.AddMembers(ctx, conversationID, ids, r.now())
	})
}

// summarize builds summaries for convs as seen by viewerID with a fixed
// number of queries. Conversations the viewer left in the meantime are skipped.
func (r *Registry) summarize(ctx context.Context, viewerID int64, convs []*store.Conversation) ([]*ConversationSummary, error) {
	summaries := make([]*ConversationSummary, 0, len(convs))
	if len(convs) == 0 {
		return summaries, nil
	}

	convIDs := make([]int64, len(convs))
	for i, conv := range convs {
		convIDs[i] = conv.ID
	}

	stats, err := r.store.ConversationStats(ctx, viewerID, convIDs)
	if err != nil {
		return nil, err
	}
	members, err := r.store.ListMembersOf(ctx, convIDs)
	if err != nil {
		return nil, err
	}

	var userIDs []int64
	for _, ms := range members {
		for _, m := range ms {
			userIDs = append(userIDs, m.UserID)
		}
	}
	users, err := r.store.GetUsers(ctx, dedupe(userIDs))
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}

	for _, conv := range convs {
		st, ok := stats[conv.ID]
		if !ok {
			continue
		}
		summary := &ConversationSummary{
			Conversation: conv,
			Members:      make([]*store.User, 0, len(members[conv.ID])),
			LastMessage:  st.LastMessage,
			MessageCount: st.MessageCount,
			UnreadCount:  st.UnreadCount,
		}
		for _, m := range members[conv.ID] {
			if u, ok := users[m.UserID]; ok {
				summary.Members = append(summary.Members, u)
			}
		}
		summary.DisplayName = displayName(conv, summary.Members, viewerID)
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// displayName is the group's name (or its members' names joined), or for a
// direct conversation the name of the peer.
func displayName(conv *store.Conversation, members []*store.User, viewerID int64) string {
	if conv.IsGroup {
		if conv.Name != nil && *conv.Name != "" {
			return *conv.Name
		}
		names := make([]string, 0, len(members))
		for _, u := range members {
			names = append(names, u.Name)
		}
		return strings.Join(names, ", ")
	}

	for _, u := range members {
		if u.ID != viewerID {
			return u.Name
		}
	}
	return UnknownName
}

func (r *Registry) requireUsers(ctx context.Context, ids []int64) error {
	users, err := r.store.GetUsers(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve users: %w", err)
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return fmt.Errorf("%w: unknown user %d", core.ErrInvalidMembership, id)
		}
	}
	return nil
}

func normalizeName(name string) (*string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if !utf8.ValidString(name) {
		return nil, fmt.Errorf("%w: name is not valid UTF-8", core.ErrInvalidContent)
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return nil, fmt.Errorf("%w: name is %d characters, max %d", core.ErrInvalidContent, n, MaxNameLength)
	}
	return &name, nil
}

// dedupe returns the distinct ids in ascending order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
