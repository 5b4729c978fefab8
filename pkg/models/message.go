// Package models defines the wire-level data types shared between the
// courier client core and the chat backend.
package models

import "time"

// MessageKind distinguishes text messages from image messages.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
)

// Message is a single chat message inside a room. Messages are immutable
// once created; the backend is the system of record and the client holds
// eventually-consistent copies.
type Message struct {
	ID           string      `json:"_id"`
	RoomID       string      `json:"group_id"`
	SenderID     string      `json:"user_id"`
	SenderName   string      `json:"username"`
	SenderAvatar *string     `json:"user_profile_image"`
	Kind         MessageKind `json:"type"`
	Content      string      `json:"content"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// SendMessageRequest is the body of a text-message send.
type SendMessageRequest struct {
	RoomID  string `json:"group_id"`
	Content string `json:"content"`
}

// SmartReplyRequest asks the backend for quick-reply suggestions for a room.
type SmartReplyRequest struct {
	RoomID string `json:"group_id"`
}

// SmartReplyResponse carries the suggestion list. The list is advisory and
// bounded (typically at most four short strings).
type SmartReplyResponse struct {
	Suggestions []string `json:"suggestions"`
}
