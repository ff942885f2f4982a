package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/duet/internal/models"
	"gorm.io/gorm"
)

var ErrSamePair = errors.New("cannot create a room with yourself")

// ResolveOrCreateRoom находит комнату пары пользователей или создает новую.
// Уникальный индекс по pair_key гарантирует одну комнату на пару: при
// конфликте одновременного создания возвращается победившая строка.
func (d *Database) ResolveOrCreateRoom(userA, userB uuid.UUID) (*models.Room, error) {
	if userA == userB {
		return nil, ErrSamePair
	}

	pairKey := models.RoomPairKey(userA, userB)

	var room models.Room
	err := d.db.Where("pair_key = ?", pairKey).First(&room).Error
	if err == nil {
		return &room, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Оба участника должны существовать
	for _, id := range []uuid.UUID{userA, userB} {
		if _, err := d.GetUser(id); err != nil {
			return nil, err
		}
	}

	room = models.Room{
		ID:        uuid.New(),
		UserAID:   userA,
		UserBID:   userB,
		PairKey:   pairKey,
		CreatedAt: time.Now().UTC(),
	}

	if err := d.db.Create(&room).Error; err != nil {
		// Скорее всего конфликт уникального индекса: вторая сторона успела
		// создать комнату первой, забираем ее строку
		var existing models.Room
		if qerr := d.db.Where("pair_key = ?", pairKey).First(&existing).Error; qerr == nil {
			return &existing, nil
		}
		return nil, err
	}

	return &room, nil
}

func (d *Database) GetRoom(id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := d.db.Preload("UserA").Preload("UserB").First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// GetUserRooms возвращает все комнаты, где пользователь — участник.
func (d *Database) GetUserRooms(userID uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room
	err := d.db.
		Preload("UserA").
		Preload("UserB").
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Find(&rooms).Error
	return rooms, err
}

// PinMessage закрепляет сообщение в комнате и возвращает его текст.
// Сообщение должно принадлежать комнате, иначе комната не меняется.
func (d *Database) PinMessage(roomID, messageID uuid.UUID) (string, error) {
	if _, err := d.GetRoom(roomID); err != nil {
		return "", err
	}

	message, err := d.GetMessage(messageID)
	if err != nil {
		return "", err
	}

	if message.RoomID != roomID {
		return "", ErrMessageNotInRoom
	}

	err = d.db.Model(&models.Room{}).Where("id = ?", roomID).
		Update("pinned_message_id", messageID).Error
	if err != nil {
		return "", err
	}

	return message.Text, nil
}
