package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/duet/internal/metrics"
)

// MessageType определяет операции и события протокола
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// Операции клиента
	TypeSendMessage    MessageType = "send_message"
	TypeGetChatHistory MessageType = "get_chat_history"
	TypeMarkAsRead     MessageType = "mark_as_read"
	TypeAddReaction    MessageType = "add_reaction"
	TypePinMessage     MessageType = "pin_message"
	TypeJoinChatRoom   MessageType = "join_chat_room"

	// События сервера
	TypeNewMessage         MessageType = "new_message"
	TypeChatHistory        MessageType = "chat_history"
	TypeLoadMissedMessages MessageType = "load_missed_messages"
	TypeMessageRead        MessageType = "message_read"
	TypeReactionAdded      MessageType = "reaction_added"
	TypeMessagePinned      MessageType = "message_pinned"
	TypeUserJoined         MessageType = "user_joined"
	TypeUserConnected      MessageType = "user_connected"
	TypeUserDisconnected   MessageType = "user_disconnected"
)

type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    *uuid.UUID      `json:"room_id,omitempty"`
	UserID    uuid.UUID       `json:"user_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent собирает серверное событие в JSON для рассылки.
func NewEvent(msgType MessageType, roomID *uuid.UUID, userID uuid.UUID, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      msgType,
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = jsonData
	}

	return json.Marshal(msg)
}

// Hub — реестр живых соединений: кто подключен, под каким пользователем и в
// каких группах комнат. Только карты в памяти, никаких обращений к базе.
type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по UserID (один пользователь может иметь несколько соединений)
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	// Клиенты в группах комнат; ключ — id комнаты
	groups map[uuid.UUID]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		groups:      make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run запускает цикл обработки регистраций и keepalive
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub и закрывает все соединения
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client

	metrics.ConnectionsActive.Inc()
	log.Printf("Client registered: %s (User: %s)", client.ID, client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		for roomID := range client.Rooms {
			h.leaveGroupUnsafe(client, roomID)
		}

		if userClients, ok := h.userClients[client.UserID]; ok {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.userClients, client.UserID)
			}
		}

		delete(h.clients, client.ID)
		close(client.Send)

		metrics.ConnectionsActive.Dec()
		log.Printf("Client unregistered: %s (User: %s)", client.ID, client.UserID)
	}
}

// JoinGroup добавляет соединение в группу комнаты
func (h *Hub) JoinGroup(client *Client, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.groups[roomID]; !ok {
		h.groups[roomID] = make(map[uuid.UUID]*Client)
	}

	h.groups[roomID][client.ID] = client
	client.mu.Lock()
	client.Rooms[roomID] = true
	client.mu.Unlock()
}

// LeaveGroup удаляет соединение из группы комнаты
func (h *Hub) LeaveGroup(client *Client, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveGroupUnsafe(client, roomID)
}

func (h *Hub) leaveGroupUnsafe(client *Client, roomID uuid.UUID) {
	if group, ok := h.groups[roomID]; ok {
		if _, ok := group[client.ID]; ok {
			delete(group, client.ID)
			client.mu.Lock()
			delete(client.Rooms, roomID)
			client.mu.Unlock()

			if len(group) == 0 {
				delete(h.groups, roomID)
			}
		}
	}
}

// SendToUser отправляет сообщение каждому живому соединению пользователя
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.userClients[userID]; ok {
		for _, client := range clients {
			select {
			case client.Send <- message:
				metrics.EventsPushed.Inc()
			default:
				log.Printf("Client %s send channel full", client.ID)
			}
		}
	}
}

// SendToGroup отправляет сообщение всем соединениям группы комнаты
func (h *Hub) SendToGroup(roomID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if group, ok := h.groups[roomID]; ok {
		for _, client := range group {
			select {
			case client.Send <- message:
				metrics.EventsPushed.Inc()
			default:
				log.Printf("Client %s send channel full", client.ID)
			}
		}
	}
}

// IsUserOnline сообщает, есть ли у пользователя живые соединения
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.userClients[userID]) > 0
}

// GetOnlineUsers возвращает список онлайн пользователей
func (h *Hub) GetOnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// GetGroupUsers возвращает список пользователей в группе комнаты
func (h *Hub) GetGroupUsers(roomID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userMap := make(map[uuid.UUID]bool)
	if group, ok := h.groups[roomID]; ok {
		for _, client := range group {
			userMap[client.UserID] = true
		}
	}

	users := make([]uuid.UUID, 0, len(userMap))
	for userID := range userMap {
		users = append(users, userID)
	}
	return users
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := Message{
		Type:      TypePing,
		Timestamp: time.Now().UTC(),
	}

	if data, err := json.Marshal(msg); err == nil {
		for _, client := range h.clients {
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
