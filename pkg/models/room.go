package models

import "time"

// Role is a member's role inside a room. Exactly one member of a room
// holds RoleOwner at any time.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Member is a user's membership record inside a room.
type Member struct {
	UserID       string  `json:"userId"`
	Username     string  `json:"username"`
	ProfileImage *string `json:"profileImage"`
	Role         Role    `json:"role"`
}

// Room is a named group chat with an ordered member list.
type Room struct {
	ID        string    `json:"_id"`
	Name      string    `json:"group_name"`
	Image     string    `json:"group_image"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Owner returns the member holding RoleOwner, or nil when the room has no
// members (a state the backend never produces).
func (r *Room) Owner() *Member {
	for i := range r.Members {
		if r.Members[i].Role == RoleOwner {
			return &r.Members[i]
		}
	}
	return nil
}

// MemberByID returns the membership record for the given user, or nil.
func (r *Room) MemberByID(userID string) *Member {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i]
		}
	}
	return nil
}
