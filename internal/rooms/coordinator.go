// Package rooms coordinates room membership: announcing which room the
// client is actively viewing on the realtime channel, and the REST-backed
// membership operations (leave, ownership transfer) with their local
// invariant checks.
package rooms

import (
	"github.com/haasonsaas/courier/internal/connection"
	"github.com/haasonsaas/courier/internal/observability"
)

// NavigationIntent states where the user is headed when a room view is
// torn down. The zero value means navigation away from any room.
type NavigationIntent struct {
	// TargetRoomID is the room the user is navigating to, or "" when
	// leaving the chat area entirely.
	TargetRoomID string
}

// NavigateAway is the intent for leaving the chat area.
var NavigateAway = NavigationIntent{}

// NavigateToRoom is the intent for moving to (or remounting) a room view.
func NavigateToRoom(roomID string) NavigationIntent {
	return NavigationIntent{TargetRoomID: roomID}
}

// LeavesRoom reports whether this navigation actually departs roomID.
// A remount of the same room is not a departure.
func (n NavigationIntent) LeavesRoom(roomID string) bool {
	return n.TargetRoomID != roomID
}

// Sender emits events on the realtime channel.
type Sender interface {
	Send(event string, payload any)
}

// Coordinator announces room viewing state so the backend can scope
// delivery. One room at a time: announcing a join for room B while room
// A is joined does not leave A; callers leave A explicitly.
type Coordinator struct {
	sender Sender
	log    *observability.Logger
}

// NewCoordinator creates a coordinator over the given channel sender.
func NewCoordinator(sender Sender, log *observability.Logger) *Coordinator {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Coordinator{sender: sender, log: log}
}

// AnnounceJoin tells the backend the client is now viewing roomID.
func (c *Coordinator) AnnounceJoin(roomID string) {
	c.sender.Send(connection.EventJoinRoom, roomID)
}

// AnnounceLeave tells the backend the client stopped viewing roomID,
// but only when nav truly departs the room. Incidental view remounts
// pass the same room as the target and announce nothing.
func (c *Coordinator) AnnounceLeave(roomID string, nav NavigationIntent) bool {
	if !nav.LeavesRoom(roomID) {
		return false
	}
	c.sender.Send(connection.EventLeaveRoom, roomID)
	return true
}
