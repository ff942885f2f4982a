package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/thereayou/duet/internal/database"
	"gorm.io/gorm"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotParticipant  = errors.New("you are not a member of this room")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrRoomIDRequired  = errors.New("room id is required")
	ErrEmptyMessage    = errors.New("message text cannot be empty")
	ErrEmptyReaction   = errors.New("reaction cannot be empty")
)

// clientFault — ошибки, текст которых отдается клиенту как есть:
// not found, нет прав, невалидный запрос.
func clientFault(err error) bool {
	for _, known := range []error{
		ErrRoomNotFound,
		ErrMessageNotFound,
		ErrUserNotFound,
		ErrNotParticipant,
		ErrInvalidUserID,
		ErrRoomIDRequired,
		ErrEmptyMessage,
		ErrEmptyReaction,
		database.ErrMessageNotInRoom,
		database.ErrSamePair,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// failOp скрывает внутренние ошибки за стабильным сообщением операции,
// причина остается в логе.
func failOp(op string, err error) error {
	if clientFault(err) {
		return err
	}
	log.Printf("%s failed: %v", op, err)
	return fmt.Errorf("failed to %s", op)
}

// asNotFound заменяет отсутствующую запись на доменную ошибку
func asNotFound(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}
