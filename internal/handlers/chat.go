package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/duet/internal/database"
	"github.com/thereayou/duet/internal/handlers/dto"
	"github.com/thereayou/duet/internal/metrics"
	"github.com/thereayou/duet/internal/models"
	ws "github.com/thereayou/duet/internal/websocket"
)

// ChatHandler — контроллер чат-сессии: жизненный цикл соединения и все
// операции протокола. Право доступа проверяется на каждой операции по
// участникам комнаты в базе, не кэшируется на соединении.
type ChatHandler struct {
	db  *database.Database
	hub *ws.Hub
}

func NewChatHandler(db *database.Database, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{db: db, hub: hub}
}

// OnConnect resolves комнату с собеседником, подключает соединение к ее
// группе, досылает пропущенные сообщения и уведомляет собеседника.
// Любая ошибка означает обрыв соединения без частичного состояния.
func (h *ChatHandler) OnConnect(client *ws.Client, counterpartID string) error {
	secondUserID, err := uuid.Parse(counterpartID)
	if err != nil {
		return ErrInvalidUserID
	}

	room, err := h.db.ResolveOrCreateRoom(client.UserID, secondUserID)
	if err != nil {
		return failOp("connect", asNotFound(err, ErrUserNotFound))
	}

	h.hub.JoinGroup(client, room.ID)

	if err := h.pushMissedMessages(client, room.ID); err != nil {
		return failOp("connect", err)
	}

	event, err := ws.NewEvent(ws.TypeUserConnected, &room.ID, client.UserID, dto.PresencePayload{
		UserID:    client.UserID,
		RoomID:    room.ID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return failOp("connect", err)
	}
	h.hub.SendToUser(room.OtherParticipant(client.UserID), event)

	log.Printf("User %s connected to chat room %s", client.UserID, room.ID)
	return nil
}

// HandleDisconnect уведомляет собеседников и покидает группы. Собеседник
// каждой комнаты берется из групп, в которых соединение реально состояло.
// Ошибки здесь только логируются: очистка должна дойти до конца.
func (h *ChatHandler) HandleDisconnect(client *ws.Client) {
	for _, roomID := range client.GetRooms() {
		room, err := h.db.GetRoom(roomID)
		if err != nil {
			log.Printf("Error during disconnection: %v", err)
			h.hub.LeaveGroup(client, roomID)
			continue
		}

		event, err := ws.NewEvent(ws.TypeUserDisconnected, &room.ID, client.UserID, dto.PresencePayload{
			UserID:    client.UserID,
			RoomID:    room.ID,
			Timestamp: time.Now().UTC(),
		})
		if err == nil {
			h.hub.SendToUser(room.OtherParticipant(client.UserID), event)
		}

		h.hub.LeaveGroup(client, roomID)
		log.Printf("User %s disconnected from chat room %s", client.UserID, room.ID)
	}
}

func (h *ChatHandler) HandleMessage(client *ws.Client, msg *ws.Message) error {
	switch msg.Type {
	case ws.TypeSendMessage:
		return h.handleSendMessage(client, msg)

	case ws.TypeGetChatHistory:
		return h.handleGetChatHistory(client, msg)

	case ws.TypeMarkAsRead:
		return h.handleMarkAsRead(client, msg)

	case ws.TypeAddReaction:
		return h.handleAddReaction(client, msg)

	case ws.TypePinMessage:
		return h.handlePinMessage(client, msg)

	case ws.TypeJoinChatRoom:
		return h.handleJoinChatRoom(client, msg)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
		return nil
	}
}

func (h *ChatHandler) handleSendMessage(client *ws.Client, msg *ws.Message) error {
	if msg.RoomID == nil {
		return ErrRoomIDRequired
	}

	var payload dto.SendMessagePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return ws.ErrInvalidMessage
	}
	if payload.Text == "" {
		return ErrEmptyMessage
	}

	// Комната всегда ищется заново, хэндл клиента может устареть
	room, err := h.db.GetRoom(*msg.RoomID)
	if err != nil {
		return failOp("send message", asNotFound(err, ErrRoomNotFound))
	}
	if !room.HasParticipant(client.UserID) {
		return ErrNotParticipant
	}

	// Цитата ответа подтягивается best-effort: сам reply_id сохраняется
	// в любом случае
	var replyText string
	if payload.ReplyID != nil {
		if replied, err := h.db.GetMessage(*payload.ReplyID); err == nil {
			replyText = replied.Text
		}
	}

	message := &models.Message{
		RoomID:   room.ID,
		SenderID: client.UserID,
		Text:     payload.Text,
		ReplyID:  payload.ReplyID,
		IsRead:   false,
	}

	if err := h.db.SaveMessage(message); err != nil {
		return failOp("send message", err)
	}

	response := h.messageResponse(message)
	response.ReplyText = replyText

	event, err := ws.NewEvent(ws.TypeNewMessage, &room.ID, client.UserID, response)
	if err != nil {
		return failOp("send message", err)
	}

	// Рассылка всей группе комнаты, а не только адресату: все вкладки
	// обоих участников видят сообщение без перезапроса
	h.hub.SendToGroup(room.ID, event)
	metrics.MessagesSent.Inc()

	go h.db.UpdateLastSeen(client.UserID)

	log.Printf("Sent message %s in chat %s from user %s to user %s",
		message.ID, room.ID, client.UserID, room.OtherParticipant(client.UserID))

	return nil
}

func (h *ChatHandler) handleGetChatHistory(client *ws.Client, msg *ws.Message) error {
	if msg.RoomID == nil {
		return ErrRoomIDRequired
	}

	var payload dto.HistoryPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return ws.ErrInvalidMessage
		}
	}

	room, err := h.db.GetRoom(*msg.RoomID)
	if err != nil {
		return failOp("get chat history", asNotFound(err, ErrRoomNotFound))
	}
	if !room.HasParticipant(client.UserID) {
		return ErrNotParticipant
	}

	messages, err := h.db.GetChatHistory(room.ID, payload.Skip, payload.Take)
	if err != nil {
		return failOp("get chat history", err)
	}

	responses := make([]dto.MessageResponse, len(messages))
	for i := range messages {
		responses[i] = h.messageResponse(&messages[i])
	}

	// История уходит только запросившему соединению
	return client.SendEvent(ws.TypeChatHistory, &room.ID, responses)
}

func (h *ChatHandler) handleMarkAsRead(client *ws.Client, msg *ws.Message) error {
	var payload dto.MarkReadPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return ws.ErrInvalidMessage
	}

	message, err := h.db.GetMessage(payload.MessageID)
	if err != nil {
		return failOp("mark as read", asNotFound(err, ErrMessageNotFound))
	}

	if err := h.db.MarkMessageAsRead(message.ID); err != nil {
		return failOp("mark as read", err)
	}

	event, err := ws.NewEvent(ws.TypeMessageRead, &message.RoomID, client.UserID, dto.MessageReadPayload{
		MessageID: message.ID,
		RoomID:    message.RoomID,
		ReaderID:  client.UserID,
	})
	if err != nil {
		return failOp("mark as read", err)
	}
	h.hub.SendToUser(message.SenderID, event)

	return nil
}

func (h *ChatHandler) handleAddReaction(client *ws.Client, msg *ws.Message) error {
	var payload dto.ReactionPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return ws.ErrInvalidMessage
	}
	if payload.Reaction == "" {
		return ErrEmptyReaction
	}

	message, err := h.db.GetMessage(payload.MessageID)
	if err != nil {
		return failOp("add reaction", asNotFound(err, ErrMessageNotFound))
	}

	room, err := h.db.GetRoom(message.RoomID)
	if err != nil {
		return failOp("add reaction", asNotFound(err, ErrRoomNotFound))
	}
	if !room.HasParticipant(client.UserID) {
		return ErrNotParticipant
	}

	if err := h.db.SetReaction(message.ID, payload.Reaction); err != nil {
		return failOp("add reaction", err)
	}

	event, err := ws.NewEvent(ws.TypeReactionAdded, &room.ID, client.UserID, dto.ReactionAddedPayload{
		MessageID: message.ID,
		Reaction:  payload.Reaction,
		UserID:    client.UserID,
	})
	if err != nil {
		return failOp("add reaction", err)
	}

	h.hub.SendToUser(message.SenderID, event)
	if message.SenderID != client.UserID {
		h.hub.SendToUser(client.UserID, event)
	}

	return nil
}

func (h *ChatHandler) handlePinMessage(client *ws.Client, msg *ws.Message) error {
	if msg.RoomID == nil {
		return ErrRoomIDRequired
	}

	var payload dto.PinPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return ws.ErrInvalidMessage
	}

	room, err := h.db.GetRoom(*msg.RoomID)
	if err != nil {
		return failOp("pin message", asNotFound(err, ErrRoomNotFound))
	}
	if !room.HasParticipant(client.UserID) {
		return ErrNotParticipant
	}

	text, err := h.db.PinMessage(room.ID, payload.MessageID)
	if err != nil {
		return failOp("pin message", asNotFound(err, ErrMessageNotFound))
	}

	event, err := ws.NewEvent(ws.TypeMessagePinned, &room.ID, client.UserID, dto.MessagePinnedPayload{
		RoomID:    room.ID,
		MessageID: payload.MessageID,
		PinnedBy:  client.UserID,
		Text:      text,
	})
	if err != nil {
		return failOp("pin message", err)
	}

	h.hub.SendToUser(room.UserAID, event)
	h.hub.SendToUser(room.UserBID, event)

	return nil
}

// handleJoinChatRoom подключает соединение к уже существующей комнате,
// например при восстановлении сессии.
func (h *ChatHandler) handleJoinChatRoom(client *ws.Client, msg *ws.Message) error {
	if msg.RoomID == nil {
		return ErrRoomIDRequired
	}

	room, err := h.db.GetRoom(*msg.RoomID)
	if err != nil {
		return failOp("join chat room", asNotFound(err, ErrRoomNotFound))
	}
	if !room.HasParticipant(client.UserID) {
		return ErrNotParticipant
	}

	h.hub.JoinGroup(client, room.ID)

	if err := h.pushMissedMessages(client, room.ID); err != nil {
		return failOp("join chat room", err)
	}

	event, err := ws.NewEvent(ws.TypeUserJoined, &room.ID, client.UserID, dto.PresencePayload{
		UserID:    client.UserID,
		RoomID:    room.ID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return failOp("join chat room", err)
	}
	h.hub.SendToGroup(room.ID, event)

	log.Printf("User %s joined chat room %s", client.UserID, room.ID)
	return nil
}

// pushMissedMessages досылает соединению непрочитанные сообщения комнаты,
// отправленные не им самим, из последних MaxHistoryTake.
func (h *ChatHandler) pushMissedMessages(client *ws.Client, roomID uuid.UUID) error {
	messages, err := h.db.GetChatHistory(roomID, 0, database.MaxHistoryTake)
	if err != nil {
		return err
	}

	missed := make([]dto.MessageResponse, 0)
	for i := range messages {
		if !messages[i].IsRead && messages[i].SenderID != client.UserID {
			missed = append(missed, h.messageResponse(&messages[i]))
		}
	}

	if len(missed) == 0 {
		return nil
	}

	return client.SendEvent(ws.TypeLoadMissedMessages, &roomID, missed)
}

func (h *ChatHandler) messageResponse(message *models.Message) dto.MessageResponse {
	response := dto.MessageResponse{
		ID:        message.ID,
		RoomID:    message.RoomID,
		SenderID:  message.SenderID,
		Text:      message.Text,
		Reaction:  message.Reaction,
		ReplyID:   message.ReplyID,
		IsRead:    message.IsRead,
		CreatedAt: message.CreatedAt,
	}

	if message.Sender.ID != uuid.Nil {
		response.Sender = &dto.UserInfo{
			ID:        message.Sender.ID,
			Username:  message.Sender.Username,
			AvatarURL: message.Sender.AvatarURL,
		}
	}

	return response
}
