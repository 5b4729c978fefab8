package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/courier/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func cachedMsg(roomID, content string, at time.Time) models.Message {
	return models.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  "u1",
		Kind:      models.MessageText,
		Content:   content,
		CreatedAt: at,
	}
}

func TestStore_ReplaceAndHistory(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	err := s.ReplaceHistory("room-1", []models.Message{
		cachedMsg("room-1", "first", base),
		cachedMsg("room-1", "second", base.Add(time.Second)),
	})
	if err != nil {
		t.Fatalf("ReplaceHistory: %v", err)
	}

	got, err := s.History("room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("order = [%s %s], want [first second]", got[0].Content, got[1].Content)
	}
}

func TestStore_ReplaceDropsOldEntries(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()

	if err := s.ReplaceHistory("room-1", []models.Message{cachedMsg("room-1", "old", base)}); err != nil {
		t.Fatalf("first ReplaceHistory: %v", err)
	}
	if err := s.ReplaceHistory("room-1", []models.Message{cachedMsg("room-1", "new", base)}); err != nil {
		t.Fatalf("second ReplaceHistory: %v", err)
	}

	got, err := s.History("room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].Content != "new" {
		t.Errorf("history = %+v, want single new entry", got)
	}
}

func TestStore_AppendIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	msg := cachedMsg("room-1", "hi", time.Now().UTC())

	if err := s.Append(msg); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(msg); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	got, err := s.History("room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestStore_UncachedRoom(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.History("room-missing"); !errors.Is(err, ErrNotCached) {
		t.Errorf("err = %v, want ErrNotCached", err)
	}
}

func TestStore_RoomsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()

	s.Append(cachedMsg("room-1", "one", base))
	s.Append(cachedMsg("room-2", "two", base))

	if err := s.Purge("room-1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	if _, err := s.History("room-1"); !errors.Is(err, ErrNotCached) {
		t.Errorf("room-1 err = %v, want ErrNotCached", err)
	}
	got, err := s.History("room-2")
	if err != nil || len(got) != 1 {
		t.Errorf("room-2 history = %v, %v", got, err)
	}
}

func TestStore_SaveAndListRooms(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveRooms([]models.Room{
		{
			ID:   "room-2",
			Name: "zeta",
			Members: []models.Member{
				{UserID: "a", Username: "ana", Role: models.RoleOwner},
			},
		},
		{
			ID:   "room-1",
			Name: "alpha",
			Members: []models.Member{
				{UserID: "a", Username: "ana", Role: models.RoleOwner},
				{UserID: "b", Username: "bo", Role: models.RoleMember},
			},
		},
	})
	if err != nil {
		t.Fatalf("SaveRooms: %v", err)
	}

	got, err := s.Rooms()
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "alpha" || got[1].Name != "zeta" {
		t.Errorf("order = [%s %s], want [alpha zeta]", got[0].Name, got[1].Name)
	}
	if len(got[1].Members) != 1 || got[1].Members[0].Role != models.RoleOwner {
		t.Errorf("members round trip broken: %+v", got[1].Members)
	}
}

func TestStore_SaveRoomsReplacesList(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveRooms([]models.Room{{ID: "room-old", Name: "old"}}); err != nil {
		t.Fatalf("first SaveRooms: %v", err)
	}
	if err := s.SaveRooms([]models.Room{{ID: "room-new", Name: "new"}}); err != nil {
		t.Fatalf("second SaveRooms: %v", err)
	}

	got, err := s.Rooms()
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(got) != 1 || got[0].ID != "room-new" {
		t.Errorf("rooms = %+v, want single room-new", got)
	}
}

func TestStore_RoomsEmpty(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Rooms(); !errors.Is(err, ErrNotCached) {
		t.Errorf("err = %v, want ErrNotCached", err)
	}
}
