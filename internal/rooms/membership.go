package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/pkg/models"
)

var (
	// ErrOwnerCannotLeave indicates the current user owns the room and
	// must transfer ownership before leaving.
	ErrOwnerCannotLeave = errors.New("rooms: owner cannot leave, transfer ownership first")

	// ErrNotAMember indicates the target user is not in the room.
	ErrNotAMember = errors.New("rooms: user is not a member")

	// ErrAlreadyOwner indicates the target user already owns the room.
	ErrAlreadyOwner = errors.New("rooms: user already owns the room")
)

// Backend is the REST surface the membership service needs.
type Backend interface {
	TransferOwnership(ctx context.Context, roomID, newOwnerID string) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID string) error
}

// Service applies membership changes with their local invariant checks:
// a room has exactly one owner, and the owner cannot leave.
type Service struct {
	backend Backend
	log     *observability.Logger
}

// NewService creates a membership service.
func NewService(backend Backend, log *observability.Logger) *Service {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Service{backend: backend, log: log}
}

// CanLeave reports whether userID may leave the room. Owners are
// rejected; they must transfer ownership first.
func (s *Service) CanLeave(room *models.Room, userID string) error {
	member := room.MemberByID(userID)
	if member == nil {
		return ErrNotAMember
	}
	if member.Role == models.RoleOwner {
		return ErrOwnerCannotLeave
	}
	return nil
}

// Leave removes userID from the room after the owner check. A rejected
// leave changes no state and emits nothing.
func (s *Service) Leave(ctx context.Context, room *models.Room, userID string) error {
	if err := s.CanLeave(room, userID); err != nil {
		return err
	}
	if err := s.backend.LeaveRoom(ctx, room.ID); err != nil {
		return fmt.Errorf("leave room %s: %w", room.ID, err)
	}
	s.log.Info(ctx, "left room", "room_id", room.ID)
	return nil
}

// Transfer makes newOwnerID the room's owner. The target must be a
// member and not already the owner. The returned room reflects the
// atomic backend update; VerifyOwnership guards the one-owner invariant.
func (s *Service) Transfer(ctx context.Context, room *models.Room, newOwnerID string) (*models.Room, error) {
	member := room.MemberByID(newOwnerID)
	if member == nil {
		return nil, ErrNotAMember
	}
	if member.Role == models.RoleOwner {
		return nil, ErrAlreadyOwner
	}

	updated, err := s.backend.TransferOwnership(ctx, room.ID, newOwnerID)
	if err != nil {
		return nil, fmt.Errorf("transfer ownership of room %s: %w", room.ID, err)
	}
	if err := VerifyOwnership(updated, newOwnerID); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "ownership transferred", "room_id", room.ID, "new_owner", newOwnerID)
	return updated, nil
}

// VerifyOwnership checks that exactly one member owns the room and that
// it is wantOwnerID.
func VerifyOwnership(room *models.Room, wantOwnerID string) error {
	owners := 0
	var ownerID string
	for _, member := range room.Members {
		if member.Role == models.RoleOwner {
			owners++
			ownerID = member.UserID
		}
	}
	if owners != 1 {
		return fmt.Errorf("rooms: room %s has %d owners, want exactly 1", room.ID, owners)
	}
	if ownerID != wantOwnerID {
		return fmt.Errorf("rooms: room %s owned by %s, want %s", room.ID, ownerID, wantOwnerID)
	}
	return nil
}
