package models

import (
	"time"

	"github.com/google/uuid"
)

// Room — личная комната двух пользователей. Пара участников неупорядочена и
// неизменяема после создания; PairKey — нормализованный ключ пары под
// уникальный индекс.
type Room struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserAID         uuid.UUID `gorm:"type:uuid;not null"`
	UserBID         uuid.UUID `gorm:"type:uuid;not null"`
	PairKey         string    `gorm:"uniqueIndex;not null"`
	PinnedMessageID *uuid.UUID
	CreatedAt       time.Time

	// Связи
	UserA    User      `gorm:"foreignKey:UserAID"`
	UserB    User      `gorm:"foreignKey:UserBID"`
	Messages []Message `gorm:"foreignKey:RoomID"`
}

// RoomPairKey строит ключ пары, одинаковый для (a,b) и (b,a).
func RoomPairKey(a, b uuid.UUID) string {
	if a.String() > b.String() {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

func (r *Room) HasParticipant(userID uuid.UUID) bool {
	return r.UserAID == userID || r.UserBID == userID
}

// OtherParticipant возвращает второго участника комнаты.
func (r *Room) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if r.UserAID == userID {
		return r.UserBID
	}
	return r.UserAID
}
