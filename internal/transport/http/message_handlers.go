package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/service/chat"
)

// MessageHandlers provides HTTP handlers for message endpoints.
type MessageHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *chat.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		chat: svc,
		log:  logger,
	}
}

// MessageRequest represents the send and edit request body. Content is
// validated by the message log.
type MessageRequest struct {
	Content string `json:"content"`
}

// List handles listing a conversation's messages, oldest first.
// GET /api/v1/conversations/:id/messages?page_token=
func (h *MessageHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	page, err := h.chat.Messages.List(c.Request.Context(), convID, uid, c.Query("page_token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messagesToResponse(page))
}

// Send handles posting a message.
// POST /api/v1/conversations/:id/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.chat.Delivery.SendMessage(c.Request.Context(), convID, uid, req.Content)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, messageToResponse(msg))
}

// Get handles fetching a single message.
// GET /api/v1/messages/:id
func (h *MessageHandlers) Get(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := h.chat.Messages.Get(c.Request.Context(), msgID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messageToResponse(msg))
}

// Edit handles editing a message.
// PATCH /api/v1/messages/:id
func (h *MessageHandlers) Edit(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.chat.Messages.Edit(c.Request.Context(), msgID, uid, req.Content)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messageToResponse(msg))
}

// Delete handles deleting a message.
// DELETE /api/v1/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.chat.Messages.Delete(c.Request.Context(), msgID, uid); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}
