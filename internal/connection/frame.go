package connection

import "encoding/json"

// Wire event names. These match the backend's channel protocol and must
// not be renamed.
const (
	EventJoinRoom    = "joinGroup"
	EventLeaveRoom   = "leaveGroup"
	EventRoomMessage = "groupMessage"

	EventStartTyping = "startTyping"
	EventStopTyping  = "stopTyping"

	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
)

// Frame is the envelope for every message on the realtime channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoomMessagePayload is the body of a groupMessage push.
type RoomMessagePayload struct {
	RoomID  string          `json:"groupId"`
	Message json.RawMessage `json:"message"`
}
