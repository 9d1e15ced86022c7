package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/core"
	"github.com/vovakirdan/chatcore/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// Me returns the authenticated user.
// GET /api/v1/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The token outlived its account.
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown user", Code: core.ErrCodeUnauthorized})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to load user")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, userToResponse(user, true))
}
