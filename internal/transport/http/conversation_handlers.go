package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/core"
	"github.com/vovakirdan/chatcore/internal/service/chat"
)

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *chat.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		chat: svc,
		log:  logger,
	}
}

// CreateConversationRequest represents the create conversation request body.
// The caller is always a member. Without is_group, exactly one other user
// opens (or reuses) a direct conversation and more than one makes a group.
type CreateConversationRequest struct {
	UserIDs []int64 `json:"user_ids"`
	Name    string  `json:"name"`
	IsGroup *bool   `json:"is_group"`
}

// RenameConversationRequest represents the rename request body.
type RenameConversationRequest struct {
	Name string `json:"name"`
}

// AddMembersRequest represents the add members request body.
type AddMembersRequest struct {
	UserIDs []int64 `json:"user_ids" binding:"required,min=1"`
}

// MarkReadRequest represents the mark read request body. A zero or missing
// message_id marks everything read.
type MarkReadRequest struct {
	MessageID int64 `json:"message_id"`
}

// TypingRequest represents the typing request body. Missing typing means true.
type TypingRequest struct {
	Typing *bool `json:"typing"`
}

// UnreadResponse carries the unread count after a read.
type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

// TypingResponse lists the members currently typing.
type TypingResponse struct {
	UserIDs []int64 `json:"user_ids"`
}

// List handles listing the caller's conversations.
// GET /api/v1/conversations?page_token=
func (h *ConversationHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	page, err := h.chat.Conversations.ListForUser(c.Request.Context(), uid, c.Query("page_token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, summariesToResponse(page))
}

// Create handles opening a direct conversation or creating a group.
// POST /api/v1/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		badRequest(c, "invalid request body")
		return
	}

	others := otherUsers(uid, req.UserIDs)
	isGroup := len(others) > 1
	if req.IsGroup != nil {
		isGroup = *req.IsGroup
	}

	ctx := c.Request.Context()
	var (
		convID  int64
		created = true
	)
	if isGroup {
		conv, err := h.chat.Conversations.CreateGroup(ctx, uid, others, req.Name)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		convID = conv.ID
	} else {
		if len(others) != 1 {
			writeError(c, h.log, fmt.Errorf("%w: a direct conversation needs exactly one other user", core.ErrInvalidMembership))
			return
		}
		conv, isNew, err := h.chat.Conversations.FindOrCreateDirect(ctx, uid, others[0])
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		convID, created = conv.ID, isNew
	}

	summary, err := h.chat.Conversations.Get(ctx, convID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info().Int64("conversation_id", convID).Int64("creator_id", uid).Bool("group", summary.Conversation.IsGroup).Msg("conversation created")
	}
	c.JSON(status, summaryToResponse(summary))
}

// Get handles fetching a single conversation.
// GET /api/v1/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	summary, err := h.chat.Conversations.Get(c.Request.Context(), convID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, summaryToResponse(summary))
}

// Rename handles renaming a group.
// PATCH /api/v1/conversations/:id
func (h *ConversationHandlers) Rename(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.chat.Conversations.Rename(ctx, convID, uid, req.Name); err != nil {
		writeError(c, h.log, err)
		return
	}
	summary, err := h.chat.Conversations.Get(ctx, convID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, summaryToResponse(summary))
}

// Leave handles leaving a conversation.
// DELETE /api/v1/conversations/:id
func (h *ConversationHandlers) Leave(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.chat.Conversations.Leave(c.Request.Context(), convID, uid); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left conversation"})
}

// AddMembers handles adding users to a group.
// POST /api/v1/conversations/:id/members
func (h *ConversationHandlers) AddMembers(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	if err := h.chat.Conversations.AddMembers(ctx, convID, uid, req.UserIDs); err != nil {
		writeError(c, h.log, err)
		return
	}
	summary, err := h.chat.Conversations.Get(ctx, convID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, summaryToResponse(summary))
}

// MarkRead handles advancing the caller's read cursor.
// POST /api/v1/conversations/:id/read
func (h *ConversationHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req MarkReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	unread, err := h.chat.Presence.MarkRead(c.Request.Context(), convID, uid, req.MessageID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, UnreadResponse{UnreadCount: unread})
}

// SetTyping handles typing notifications.
// POST /api/v1/conversations/:id/typing
func (h *ConversationHandlers) SetTyping(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req TypingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	typing := req.Typing == nil || *req.Typing

	if err := h.chat.Presence.SetTyping(c.Request.Context(), convID, uid, typing); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"typing": typing})
}

// Typing handles listing members currently typing.
// GET /api/v1/conversations/:id/typing
func (h *ConversationHandlers) Typing(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	users, err := h.chat.Presence.TypingUsers(c.Request.Context(), convID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, TypingResponse{UserIDs: users})
}

// otherUsers drops the caller and duplicates, keeping request order.
func otherUsers(self int64, ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == self {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
