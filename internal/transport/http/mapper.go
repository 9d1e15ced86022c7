package http

import (
	"time"

	"github.com/vovakirdan/chatcore/internal/service/chat"
	"github.com/vovakirdan/chatcore/internal/store"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ConversationResponse represents a conversation summary in API responses.
type ConversationResponse struct {
	ID           int64            `json:"id"`
	Name         *string          `json:"name"`
	IsGroup      bool             `json:"is_group"`
	DisplayName  string           `json:"display_name"`
	Members      []UserResponse   `json:"members"`
	LastMessage  *MessageResponse `json:"last_message"`
	MessageCount int              `json:"message_count"`
	UnreadCount  int              `json:"unread_count"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

// ListResponse is one page of a listing.
type ListResponse[T any] struct {
	Data          []T    `json:"data"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// userToResponse exposes the email only when withEmail is set.
func userToResponse(u *store.User, withEmail bool) UserResponse {
	resp := UserResponse{ID: u.ID, Name: u.Name}
	if withEmail {
		resp.Email = u.Email
		resp.CreatedAt = formatTime(u.CreatedAt)
	}
	return resp
}

func messageToResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      formatTime(m.CreatedAt),
		UpdatedAt:      formatTime(m.UpdatedAt),
	}
}

func messagesToResponse(page *chat.Page[*store.Message]) ListResponse[MessageResponse] {
	resp := ListResponse[MessageResponse]{
		Data:          make([]MessageResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, m := range page.Items {
		resp.Data = append(resp.Data, messageToResponse(m))
	}
	return resp
}

func summaryToResponse(s *chat.ConversationSummary) ConversationResponse {
	resp := ConversationResponse{
		ID:           s.Conversation.ID,
		IsGroup:      s.Conversation.IsGroup,
		DisplayName:  s.DisplayName,
		Members:      make([]UserResponse, 0, len(s.Members)),
		MessageCount: s.MessageCount,
		UnreadCount:  s.UnreadCount,
		CreatedAt:    formatTime(s.Conversation.CreatedAt),
		UpdatedAt:    formatTime(s.Conversation.UpdatedAt),
	}
	// Direct conversations have no stored name.
	if s.Conversation.IsGroup {
		resp.Name = s.Conversation.Name
	}
	for _, u := range s.Members {
		resp.Members = append(resp.Members, userToResponse(u, false))
	}
	if s.LastMessage != nil {
		last := messageToResponse(s.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

func summariesToResponse(page *chat.Page[*chat.ConversationSummary]) ListResponse[ConversationResponse] {
	resp := ListResponse[ConversationResponse]{
		Data:          make([]ConversationResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, s := range page.Items {
		resp.Data = append(resp.Data, summaryToResponse(s))
	}
	return resp
}
