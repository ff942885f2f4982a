package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/duet/internal/models"
)

const (
	// Максимум и умолчание для страницы истории
	MaxHistoryTake     = 50
	DefaultHistoryTake = 20
)

var ErrMessageNotInRoom = errors.New("message does not belong to this room")

func (d *Database) SaveMessage(message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return d.db.Create(message).Error
}

func (d *Database) GetMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// GetChatHistory получает историю комнаты, новые сообщения первыми.
// take обрезается до MaxHistoryTake независимо от запроса клиента.
func (d *Database) GetChatHistory(roomID uuid.UUID, skip, take int) ([]models.Message, error) {
	if take <= 0 {
		take = DefaultHistoryTake
	}
	if take > MaxHistoryTake {
		take = MaxHistoryTake
	}
	if skip < 0 {
		skip = 0
	}

	var messages []models.Message
	err := d.db.
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Offset(skip).
		Limit(take).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkMessageAsRead идемпотентна: повторный вызов и отсутствующее
// сообщение — no-op. Одиночный условный UPDATE, без read-modify-write.
func (d *Database) MarkMessageAsRead(id uuid.UUID) error {
	return d.db.Model(&models.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true).Error
}

// SetReaction перезаписывает реакцию на сообщении (last write wins).
func (d *Database) SetReaction(id uuid.UUID, reaction string) error {
	return d.db.Model(&models.Message{}).
		Where("id = ?", id).
		Update("reaction", reaction).Error
}

// CountUnread считает непрочитанные сообщения комнаты, адресованные
// пользователю (не его собственные).
func (d *Database) CountUnread(roomID, userID uuid.UUID) (int64, error) {
	var count int64
	err := d.db.Model(&models.Message{}).
		Where("room_id = ? AND is_read = ? AND sender_id != ?", roomID, false, userID).
		Count(&count).Error
	return count, err
}
