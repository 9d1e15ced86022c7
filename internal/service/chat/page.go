package chat

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vovakirdan/chatcore/internal/core"
	"github.com/vovakirdan/chatcore/internal/store"
)

const (
	// ConversationPageSize is the number of conversations per list page.
	ConversationPageSize = 20
	// MessagePageSize is the number of messages per list page.
	MessagePageSize = 50
)

// Page is one slice of an ordered listing. NextPageToken is empty on the last page.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// pageToken is the opaque keyset position handed to clients.
type pageToken struct {
	At int64 `json:"t"`
	ID int64 `json:"i"`
}

func encodePageToken(at time.Time, id int64) string {
	b, _ := json.Marshal(pageToken{At: at.UnixNano(), ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodePageToken(token string) (*pageToken, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed page token", core.ErrBadRequest)
	}
	var pt pageToken
	if err := json.Unmarshal(b, &pt); err != nil || pt.ID <= 0 {
		return nil, fmt.Errorf("%w: malformed page token", core.ErrBadRequest)
	}
	return &pt, nil
}

func conversationCursor(token string) (*store.ConversationCursor, error) {
	pt, err := decodePageToken(token)
	if err != nil || pt == nil {
		return nil, err
	}
	return &store.ConversationCursor{UpdatedAt: time.Unix(0, pt.At), ID: pt.ID}, nil
}

func messageCursor(token string) (*store.MessageCursor, error) {
	pt, err := decodePageToken(token)
	if err != nil || pt == nil {
		return nil, err
	}
	return &store.MessageCursor{CreatedAt: time.Unix(0, pt.At), ID: pt.ID}, nil
}
