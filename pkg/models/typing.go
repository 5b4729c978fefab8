package models

// TypingEvent is the payload of the userTyping / userStoppedTyping channel
// events. The outbound startTyping / stopTyping signals carry only the
// room id; the backend fills in the sender's identity.
type TypingEvent struct {
	RoomID   string `json:"groupId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
