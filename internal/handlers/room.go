package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/duet/internal/database"
	"github.com/thereayou/duet/internal/handlers/dto"
	"github.com/thereayou/duet/internal/middleware"
	"github.com/thereayou/duet/internal/models"
	"github.com/thereayou/duet/internal/websocket"
	"gorm.io/gorm"
)

type RoomHandler struct {
	db  *database.Database
	hub *websocket.Hub
}

func NewRoomHandler(db *database.Database, hub *websocket.Hub) *RoomHandler {
	return &RoomHandler{db: db, hub: hub}
}

// CreateRoom находит или создает личную комнату с указанным пользователем
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targetUserID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if userID == targetUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot create a room with yourself"})
		return
	}

	room, err := h.db.ResolveOrCreateRoom(userID, targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	full, _ := h.db.GetRoom(room.ID)
	if full != nil {
		room = full
	}

	c.JSON(http.StatusOK, h.formatRoomResponse(room, userID))
}

// GetMyRooms возвращает список комнат пользователя с последним сообщением
// и количеством непрочитанных
func (h *RoomHandler) GetMyRooms(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	rooms, err := h.db.GetUserRooms(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get rooms"})
		return
	}

	roomsResponse := make([]gin.H, len(rooms))
	for i, room := range rooms {
		roomResponse := h.formatRoomResponse(&room, userID)

		messages, _ := h.db.GetChatHistory(room.ID, 0, 1)
		if len(messages) > 0 {
			roomResponse["last_message"] = gin.H{
				"id":         messages[0].ID,
				"text":       messages[0].Text,
				"sender_id":  messages[0].SenderID,
				"created_at": messages[0].CreatedAt,
			}
		}

		unread, _ := h.db.CountUnread(room.ID, userID)
		roomResponse["unread_count"] = unread

		roomsResponse[i] = roomResponse
	}

	c.JSON(http.StatusOK, gin.H{"rooms": roomsResponse})
}

// GetRoom возвращает комнату, только для ее участников
func (h *RoomHandler) GetRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := h.db.GetRoom(roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	if !room.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return
	}

	c.JSON(http.StatusOK, h.formatRoomResponse(room, userID))
}

// GetRoomMessages возвращает историю комнаты постранично, новые первыми
func (h *RoomHandler) GetRoomMessages(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := h.db.GetRoom(roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	if !room.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return
	}

	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	take, _ := strconv.Atoi(c.DefaultQuery("take", "0"))

	messages, err := h.db.GetChatHistory(roomID, skip, take)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get messages"})
		return
	}

	result := make([]dto.MessageResponse, len(messages))
	for i := range messages {
		result[i] = dto.MessageResponse{
			ID:        messages[i].ID,
			RoomID:    messages[i].RoomID,
			SenderID:  messages[i].SenderID,
			Text:      messages[i].Text,
			Reaction:  messages[i].Reaction,
			ReplyID:   messages[i].ReplyID,
			IsRead:    messages[i].IsRead,
			CreatedAt: messages[i].CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": result})
}

// formatRoomResponse форматирует комнату глазами запросившего: второй
// участник отдается как собеседник
func (h *RoomHandler) formatRoomResponse(room *models.Room, userID uuid.UUID) gin.H {
	other := room.UserA
	if room.UserAID == userID {
		other = room.UserB
	}

	response := gin.H{
		"id":         room.ID,
		"created_at": room.CreatedAt,
		"other_user": gin.H{
			"id":         other.ID,
			"username":   other.Username,
			"avatar_url": other.AvatarURL,
			"is_online":  h.hub.IsUserOnline(other.ID),
		},
	}

	if room.PinnedMessageID != nil {
		response["pinned_message_id"] = room.PinnedMessageID
	}

	return response
}
