package room

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/ot"
)

// Inbound event names
const (
	EventJoinPage        = "join-page"
	EventLeavePage       = "leave-page"
	EventContentUpdate   = "content-update"
	EventCursorMove      = "cursor-move"
	EventSelectionChange = "selection-change"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventTextOperation   = "text-operation"
	EventPing            = "ping"
)

// Outbound event names
const (
	EventCurrentUsers      = "current-users"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventContentUpdated    = "content-updated"
	EventCursorMoved       = "cursor-moved"
	EventSelectionChanged  = "selection-changed"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventPong              = "pong"
	EventError             = "error"

	EventTextOperationApplied = "text-operation-applied"
	EventTextOperationAck     = "text-operation-ack"
)

// Message is the websocket envelope
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps a payload in the envelope.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	msg := Message{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// UserInfo identifies the person behind a connection
type UserInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// JoinPayload is sent by a client entering a page
type JoinPayload struct {
	PageID      string   `json:"pageId"`
	WorkspaceID string   `json:"workspaceId"`
	User        UserInfo `json:"user"`
}

func (p JoinPayload) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.PageID, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.WorkspaceID, validation.Length(0, 128)),
	)
	return apperr.NewValidationError(err)
}

type PagePayload struct {
	PageID string `json:"pageId"`
}

type ContentUpdatePayload struct {
	PageID string         `json:"pageId"`
	Blocks []blocks.Block `json:"blocks"`
	UserID string         `json:"userId"`
}

type CursorMovePayload struct {
	PageID   string         `json:"pageId"`
	Position CursorPosition `json:"position"`
}

type SelectionChangePayload struct {
	PageID    string    `json:"pageId"`
	Selection Selection `json:"selection"`
}

type TypingPayload struct {
	PageID  string `json:"pageId"`
	BlockID string `json:"blockId"`
}

// CurrentUsersPayload is unicast to a joiner. Users excludes the joiner.
type CurrentUsersPayload struct {
	PageID string         `json:"pageId"`
	Users  []UserPresence `json:"users"`
}

type UserLeftPayload struct {
	PageID       string `json:"pageId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type ContentUpdatedPayload struct {
	PageID    string         `json:"pageId"`
	Blocks    []blocks.Block `json:"blocks"`
	UserID    string         `json:"userId"`
	Timestamp int64          `json:"timestamp"`
}

type CursorMovedPayload struct {
	PageID       string         `json:"pageId"`
	ConnectionID string         `json:"connectionId"`
	UserID       string         `json:"userId"`
	Position     CursorPosition `json:"position"`
}

type SelectionChangedPayload struct {
	PageID       string    `json:"pageId"`
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Selection    Selection `json:"selection"`
}

// UserTypingPayload is used by both user-typing and user-stopped-typing
type UserTypingPayload struct {
	PageID       string `json:"pageId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	BlockID      string `json:"blockId"`
}

// TextOperationPayload is a fine-grained edit of one block's plain text.
// BaseRevision is the block revision the operation was made against.
type TextOperationPayload struct {
	PageID       string       `json:"pageId"`
	BlockID      string       `json:"blockId"`
	BaseRevision int          `json:"baseRevision"`
	Operation    ot.Operation `json:"operation"`
}

func (p TextOperationPayload) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.PageID, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.BlockID, validation.Required, validation.Length(1, blocks.MaxBlockIDLength)),
		validation.Field(&p.BaseRevision, validation.Min(0)),
		validation.Field(&p.Operation),
	)
	return apperr.NewValidationError(err)
}

// TextOperationAppliedPayload carries a sequenced operation to the other
// occupants of the page.
type TextOperationAppliedPayload struct {
	PageID       string       `json:"pageId"`
	BlockID      string       `json:"blockId"`
	ConnectionID string       `json:"connectionId"`
	UserID       string       `json:"userId"`
	Revision     int          `json:"revision"`
	Operation    ot.Operation `json:"operation"`
}

// TextOperationAckPayload tells the sender how its operation was sequenced
type TextOperationAckPayload struct {
	PageID    string       `json:"pageId"`
	BlockID   string       `json:"blockId"`
	Revision  int          `json:"revision"`
	Operation ot.Operation `json:"operation"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
