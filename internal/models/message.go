package models

import (
	"time"

	"github.com/google/uuid"
)

// Message — сообщение в комнате. Комната и отправитель неизменяемы после
// создания; IsRead переходит только false -> true.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID    uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null"`
	Text      string    `gorm:"not null"`
	Reaction  string
	ReplyID   *uuid.UUID `gorm:"type:uuid"`
	IsRead    bool       `gorm:"not null;default:false"`
	CreatedAt time.Time  `gorm:"index"`

	// Связи
	Sender User `gorm:"foreignKey:SenderID"`
	Room   Room `gorm:"foreignKey:RoomID"`
}
