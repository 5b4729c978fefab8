// Package store is the local read-through message cache. The backend
// stays the system of record; the cache lets a room open with the last
// known history before the network round trip completes and keeps chat
// usable offline in read-only form. Cache failures are advisory and
// never block the live path.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/haasonsaas/courier/pkg/models"
)

// ErrNotCached is returned when a room has no cached history.
var ErrNotCached = errors.New("store: room not cached")

// cachedMessage is the persisted form of a chat message.
type cachedMessage struct {
	ID           string    `gorm:"primarykey;size:64"`
	RoomID       string    `gorm:"index;size:64;not null"`
	SenderID     string    `gorm:"size:64;not null"`
	SenderName   string    `gorm:"size:100"`
	SenderAvatar *string   `gorm:"size:500"`
	Kind         string    `gorm:"size:20"`
	Content      string    `gorm:"size:4000"`
	CreatedAt    time.Time `gorm:"index"`
}

func (cachedMessage) TableName() string {
	return "messages"
}

// cachedRoom is the persisted form of a room the user belongs to.
// Members are stored as a JSON blob; the cache is read wholesale, never
// queried by member.
type cachedRoom struct {
	ID        string `gorm:"primarykey;size:64"`
	Name      string `gorm:"size:200"`
	Image     string `gorm:"size:500"`
	Members   string `gorm:"size:8000"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cachedRoom) TableName() string {
	return "rooms"
}

// Store persists message history in a local SQLite database.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the cache at path. Use ":memory:" for an
// ephemeral cache.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&cachedMessage{}, &cachedRoom{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// ReplaceHistory swaps the cached history for a room with the fetched
// sequence, in one transaction.
func (s *Store) ReplaceHistory(roomID string, msgs []models.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&cachedMessage{}, "room_id = ?", roomID).Error; err != nil {
			return fmt.Errorf("store: clear room %s: %w", roomID, err)
		}
		for _, msg := range msgs {
			if err := tx.Create(toCached(msg)).Error; err != nil {
				return fmt.Errorf("store: cache message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
}

// Append caches one message. A duplicate identifier is a no-op.
func (s *Store) Append(msg models.Message) error {
	result := s.db.Where("id = ?", msg.ID).FirstOrCreate(toCached(msg))
	if result.Error != nil {
		return fmt.Errorf("store: append message %s: %w", msg.ID, result.Error)
	}
	return nil
}

// History returns the cached sequence for a room in creation order.
func (s *Store) History(roomID string) ([]models.Message, error) {
	var cached []cachedMessage
	err := s.db.Where("room_id = ?", roomID).Order("created_at asc").Find(&cached).Error
	if err != nil {
		return nil, fmt.Errorf("store: history for room %s: %w", roomID, err)
	}
	if len(cached) == 0 {
		return nil, ErrNotCached
	}

	msgs := make([]models.Message, 0, len(cached))
	for _, c := range cached {
		msgs = append(msgs, fromCached(c))
	}
	return msgs, nil
}

// SaveRooms replaces the cached room list with the fetched one.
func (s *Store) SaveRooms(roomList []models.Room) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&cachedRoom{}).Error; err != nil {
			return fmt.Errorf("store: clear rooms: %w", err)
		}
		for _, room := range roomList {
			members, err := json.Marshal(room.Members)
			if err != nil {
				return fmt.Errorf("store: encode members of room %s: %w", room.ID, err)
			}
			entry := &cachedRoom{
				ID:        room.ID,
				Name:      room.Name,
				Image:     room.Image,
				Members:   string(members),
				CreatedAt: room.CreatedAt,
				UpdatedAt: room.UpdatedAt,
			}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("store: cache room %s: %w", room.ID, err)
			}
		}
		return nil
	})
}

// Rooms returns the cached room list.
func (s *Store) Rooms() ([]models.Room, error) {
	var cached []cachedRoom
	if err := s.db.Order("name asc").Find(&cached).Error; err != nil {
		return nil, fmt.Errorf("store: rooms: %w", err)
	}
	if len(cached) == 0 {
		return nil, ErrNotCached
	}

	roomList := make([]models.Room, 0, len(cached))
	for _, c := range cached {
		room := models.Room{
			ID:        c.ID,
			Name:      c.Name,
			Image:     c.Image,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
		if c.Members != "" {
			if err := json.Unmarshal([]byte(c.Members), &room.Members); err != nil {
				return nil, fmt.Errorf("store: decode members of room %s: %w", c.ID, err)
			}
		}
		roomList = append(roomList, room)
	}
	return roomList, nil
}

// Purge drops the cached history for a room.
func (s *Store) Purge(roomID string) error {
	if err := s.db.Delete(&cachedMessage{}, "room_id = ?", roomID).Error; err != nil {
		return fmt.Errorf("store: purge room %s: %w", roomID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toCached(msg models.Message) *cachedMessage {
	return &cachedMessage{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		SenderAvatar: msg.SenderAvatar,
		Kind:         string(msg.Kind),
		Content:      msg.Content,
		CreatedAt:    msg.CreatedAt,
	}
}

func fromCached(c cachedMessage) models.Message {
	return models.Message{
		ID:           c.ID,
		RoomID:       c.RoomID,
		SenderID:     c.SenderID,
		SenderName:   c.SenderName,
		SenderAvatar: c.SenderAvatar,
		Kind:         models.MessageKind(c.Kind),
		Content:      c.Content,
		CreatedAt:    c.CreatedAt,
	}
}
