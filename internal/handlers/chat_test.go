package handlers

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/duet/internal/database"
	"github.com/thereayou/duet/internal/handlers/dto"
	"github.com/thereayou/duet/internal/models"
	ws "github.com/thereayou/duet/internal/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db   *database.Database
	hub  *ws.Hub
	chat *ChatHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.Room{}, &models.Message{}))

	db := database.NewDatabase(gdb)
	hub := ws.NewHub()
	go hub.Run()

	return &testEnv{db: db, hub: hub, chat: NewChatHandler(db, hub)}
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, e.db.SaveUser(user))
	return user
}

// registerClient подключает "вкладку" пользователя к hub-у без сокета
func (e *testEnv) registerClient(t *testing.T, userID uuid.UUID) *ws.Client {
	t.Helper()

	client := ws.NewClient(e.hub, nil, userID)
	e.hub.Register(client)
	require.Eventually(t, func() bool {
		return e.hub.IsUserOnline(userID)
	}, time.Second, 5*time.Millisecond)
	return client
}

func recvEvent(t *testing.T, c *ws.Client) ws.Message {
	t.Helper()

	select {
	case data := <-c.Send:
		var msg ws.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ws.Message{}
}

func assertNoEvent(t *testing.T, c *ws.Client) {
	t.Helper()

	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func payload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestConnectNotifiesLiveCounterpart(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")

	// U2 уже онлайн, когда подключается U1
	c2 := env.registerClient(t, u2.ID)
	c1 := env.registerClient(t, u1.ID)

	require.NoError(t, env.chat.OnConnect(c1, u2.ID.String()))

	event := recvEvent(t, c2)
	assert.Equal(t, ws.TypeUserConnected, event.Type)
	assert.Equal(t, u1.ID, event.UserID)

	var presence dto.PresencePayload
	require.NoError(t, json.Unmarshal(event.Data, &presence))
	assert.Equal(t, u1.ID, presence.UserID)

	room, err := env.db.GetRoom(presence.RoomID)
	require.NoError(t, err)
	assert.True(t, room.HasParticipant(u1.ID))
	assert.True(t, room.HasParticipant(u2.ID))
	assert.True(t, c1.IsInRoom(room.ID))
}

func TestConnectOfflineCounterpartGetsNothing(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")

	// U1 подключается первым, U2 оффлайн
	c1 := env.registerClient(t, u1.ID)
	require.NoError(t, env.chat.OnConnect(c1, u2.ID.String()))
	assertNoEvent(t, c1)

	// U2 подключается позже и получает ту же комнату
	c2 := env.registerClient(t, u2.ID)
	require.NoError(t, env.chat.OnConnect(c2, u1.ID.String()))

	event := recvEvent(t, c1)
	assert.Equal(t, ws.TypeUserConnected, event.Type)
	assert.Equal(t, u2.ID, event.UserID)

	rooms1 := c1.GetRooms()
	rooms2 := c2.GetRooms()
	require.Len(t, rooms1, 1)
	require.Len(t, rooms2, 1)
	assert.Equal(t, rooms1[0], rooms2[0])
}

func TestConnectFailures(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	c1 := env.registerClient(t, u1.ID)

	assert.ErrorIs(t, env.chat.OnConnect(c1, "not-a-uuid"), ErrInvalidUserID)
	assert.ErrorIs(t, env.chat.OnConnect(c1, uuid.NewString()), ErrUserNotFound)
	assert.ErrorIs(t, env.chat.OnConnect(c1, u1.ID.String()), database.ErrSamePair)

	// Частичного состояния не осталось
	assert.Empty(t, c1.GetRooms())
}

func TestConnectPushesMissedMessages(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")

	room, err := env.db.ResolveOrCreateRoom(u1.ID, u2.ID)
	require.NoError(t, err)

	read := &models.Message{RoomID: room.ID, SenderID: u1.ID, Text: "old", IsRead: true}
	require.NoError(t, env.db.SaveMessage(read))
	unread := &models.Message{RoomID: room.ID, SenderID: u1.ID, Text: "missed"}
	require.NoError(t, env.db.SaveMessage(unread))
	own := &models.Message{RoomID: room.ID, SenderID: u2.ID, Text: "mine"}
	require.NoError(t, env.db.SaveMessage(own))

	c2 := env.registerClient(t, u2.ID)
	require.NoError(t, env.chat.OnConnect(c2, u1.ID.String()))

	event := recvEvent(t, c2)
	require.Equal(t, ws.TypeLoadMissedMessages, event.Type)

	var missed []dto.MessageResponse
	require.NoError(t, json.Unmarshal(event.Data, &missed))
	require.Len(t, missed, 1)
	assert.Equal(t, unread.ID, missed[0].ID)
	assert.Equal(t, "missed", missed[0].Text)
	assert.False(t, missed[0].IsRead)
}

func connectPair(t *testing.T, env *testEnv, u1, u2 *models.User) (c1, c2 *ws.Client, roomID uuid.UUID) {
	t.Helper()

	c2 = env.registerClient(t, u2.ID)
	c1 = env.registerClient(t, u1.ID)
	require.NoError(t, env.chat.OnConnect(c1, u2.ID.String()))
	recvEvent(t, c2) // user_connected
	require.NoError(t, env.chat.OnConnect(c2, u1.ID.String()))
	recvEvent(t, c1) // user_connected

	rooms := c1.GetRooms()
	require.Len(t, rooms, 1)
	return c1, c2, rooms[0]
}

func TestSendMessageBroadcastsToGroup(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, c2, roomID := connectPair(t, env, u1, u2)

	msg := &ws.Message{
		Type:   ws.TypeSendMessage,
		RoomID: &roomID,
		Data:   payload(t, dto.SendMessagePayload{Text: "hello"}),
	}
	require.NoError(t, env.chat.HandleMessage(c1, msg))

	for _, c := range []*ws.Client{c1, c2} {
		event := recvEvent(t, c)
		assert.Equal(t, ws.TypeNewMessage, event.Type)

		var response dto.MessageResponse
		require.NoError(t, json.Unmarshal(event.Data, &response))
		assert.Equal(t, u1.ID, response.SenderID)
		assert.Equal(t, "hello", response.Text)
		assert.False(t, response.IsRead)
	}
}

func TestSendMessageQuotesReply(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, c2, roomID := connectPair(t, env, u1, u2)

	original := &models.Message{RoomID: roomID, SenderID: u2.ID, Text: "original"}
	require.NoError(t, env.db.SaveMessage(original))

	msg := &ws.Message{
		Type:   ws.TypeSendMessage,
		RoomID: &roomID,
		Data:   payload(t, dto.SendMessagePayload{Text: "reply", ReplyID: &original.ID}),
	}
	require.NoError(t, env.chat.HandleMessage(c1, msg))

	event := recvEvent(t, c2)
	var response dto.MessageResponse
	require.NoError(t, json.Unmarshal(event.Data, &response))
	require.NotNil(t, response.ReplyID)
	assert.Equal(t, original.ID, *response.ReplyID)
	assert.Equal(t, "original", response.ReplyText)

	// Несуществующая цитата не фатальна, reply_id сохраняется
	ghost := uuid.New()
	msg.Data = payload(t, dto.SendMessagePayload{Text: "reply2", ReplyID: &ghost})
	require.NoError(t, env.chat.HandleMessage(c1, msg))

	recvEvent(t, c1)
	event = recvEvent(t, c2)
	response = dto.MessageResponse{}
	require.NoError(t, json.Unmarshal(event.Data, &response))
	assert.Empty(t, response.ReplyText)
	require.NotNil(t, response.ReplyID)
	assert.Equal(t, ghost, *response.ReplyID)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	intruder := env.createUser(t, "mallory")
	_, _, roomID := connectPair(t, env, u1, u2)

	c3 := env.registerClient(t, intruder.ID)
	msg := &ws.Message{
		Type:   ws.TypeSendMessage,
		RoomID: &roomID,
		Data:   payload(t, dto.SendMessagePayload{Text: "let me in"}),
	}
	assert.ErrorIs(t, env.chat.HandleMessage(c3, msg), ErrNotParticipant)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, _, roomID := connectPair(t, env, u1, u2)

	noRoom := &ws.Message{Type: ws.TypeSendMessage, Data: payload(t, dto.SendMessagePayload{Text: "x"})}
	assert.ErrorIs(t, env.chat.HandleMessage(c1, noRoom), ErrRoomIDRequired)

	empty := &ws.Message{Type: ws.TypeSendMessage, RoomID: &roomID, Data: payload(t, dto.SendMessagePayload{})}
	assert.ErrorIs(t, env.chat.HandleMessage(c1, empty), ErrEmptyMessage)

	ghostRoom := uuid.New()
	missing := &ws.Message{Type: ws.TypeSendMessage, RoomID: &ghostRoom, Data: payload(t, dto.SendMessagePayload{Text: "x"})}
	assert.ErrorIs(t, env.chat.HandleMessage(c1, missing), ErrRoomNotFound)
}

func TestMarkAsReadNotifiesSender(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, c2, roomID := connectPair(t, env, u1, u2)

	message := &models.Message{RoomID: roomID, SenderID: u1.ID, Text: "hello"}
	require.NoError(t, env.db.SaveMessage(message))

	msg := &ws.Message{
		Type: ws.TypeMarkAsRead,
		Data: payload(t, dto.MarkReadPayload{MessageID: message.ID}),
	}
	require.NoError(t, env.chat.HandleMessage(c2, msg))

	event := recvEvent(t, c1)
	assert.Equal(t, ws.TypeMessageRead, event.Type)

	var read dto.MessageReadPayload
	require.NoError(t, json.Unmarshal(event.Data, &read))
	assert.Equal(t, message.ID, read.MessageID)
	assert.Equal(t, u2.ID, read.ReaderID)

	reloaded, err := env.db.GetMessage(message.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsRead)

	// Повторный вызов — без ошибки
	require.NoError(t, env.chat.HandleMessage(c2, msg))

	missing := &ws.Message{
		Type: ws.TypeMarkAsRead,
		Data: payload(t, dto.MarkReadPayload{MessageID: uuid.New()}),
	}
	assert.ErrorIs(t, env.chat.HandleMessage(c2, missing), ErrMessageNotFound)
}

func TestAddReaction(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, c2, roomID := connectPair(t, env, u1, u2)

	message := &models.Message{RoomID: roomID, SenderID: u1.ID, Text: "hello"}
	require.NoError(t, env.db.SaveMessage(message))

	empty := &ws.Message{
		Type: ws.TypeAddReaction,
		Data: payload(t, dto.ReactionPayload{MessageID: message.ID}),
	}
	assert.ErrorIs(t, env.chat.HandleMessage(c2, empty), ErrEmptyReaction)

	msg := &ws.Message{
		Type: ws.TypeAddReaction,
		Data: payload(t, dto.ReactionPayload{MessageID: message.ID, Reaction: "heart"}),
	}
	require.NoError(t, env.chat.HandleMessage(c2, msg))

	// Уведомлены и отправитель, и отреагировавший
	for _, c := range []*ws.Client{c1, c2} {
		event := recvEvent(t, c)
		assert.Equal(t, ws.TypeReactionAdded, event.Type)

		var reaction dto.ReactionAddedPayload
		require.NoError(t, json.Unmarshal(event.Data, &reaction))
		assert.Equal(t, "heart", reaction.Reaction)
		assert.Equal(t, u2.ID, reaction.UserID)
	}

	reloaded, err := env.db.GetMessage(message.ID)
	require.NoError(t, err)
	assert.Equal(t, "heart", reloaded.Reaction)
}

func TestPinMessageNotifiesBothParticipants(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, c2, roomID := connectPair(t, env, u1, u2)

	message := &models.Message{RoomID: roomID, SenderID: u1.ID, Text: "pin me"}
	require.NoError(t, env.db.SaveMessage(message))

	msg := &ws.Message{
		Type:   ws.TypePinMessage,
		RoomID: &roomID,
		Data:   payload(t, dto.PinPayload{MessageID: message.ID}),
	}
	require.NoError(t, env.chat.HandleMessage(c1, msg))

	for _, c := range []*ws.Client{c1, c2} {
		event := recvEvent(t, c)
		assert.Equal(t, ws.TypeMessagePinned, event.Type)

		var pinned dto.MessagePinnedPayload
		require.NoError(t, json.Unmarshal(event.Data, &pinned))
		assert.Equal(t, message.ID, pinned.MessageID)
		assert.Equal(t, u1.ID, pinned.PinnedBy)
		assert.Equal(t, "pin me", pinned.Text)
	}

	room, err := env.db.GetRoom(roomID)
	require.NoError(t, err)
	require.NotNil(t, room.PinnedMessageID)
	assert.Equal(t, message.ID, *room.PinnedMessageID)
}

func TestGetChatHistory(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	outsider := env.createUser(t, "mallory")
	c1, _, roomID := connectPair(t, env, u1, u2)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.db.SaveMessage(&models.Message{
			RoomID:    roomID,
			SenderID:  u1.ID,
			Text:      fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	msg := &ws.Message{
		Type:   ws.TypeGetChatHistory,
		RoomID: &roomID,
		Data:   payload(t, dto.HistoryPayload{Skip: 0, Take: 3}),
	}
	require.NoError(t, env.chat.HandleMessage(c1, msg))

	event := recvEvent(t, c1)
	require.Equal(t, ws.TypeChatHistory, event.Type)

	var history []dto.MessageResponse
	require.NoError(t, json.Unmarshal(event.Data, &history))
	require.Len(t, history, 3)
	assert.Equal(t, "message 2", history[0].Text)
	assert.Equal(t, "message 0", history[2].Text)

	c3 := env.registerClient(t, outsider.ID)
	assert.ErrorIs(t, env.chat.HandleMessage(c3, msg), ErrNotParticipant)
}

func TestJoinChatRoom(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")

	room, err := env.db.ResolveOrCreateRoom(u1.ID, u2.ID)
	require.NoError(t, err)

	unread := &models.Message{RoomID: room.ID, SenderID: u1.ID, Text: "catch up"}
	require.NoError(t, env.db.SaveMessage(unread))

	// U1 уже в группе комнаты
	c1 := env.registerClient(t, u1.ID)
	env.hub.JoinGroup(c1, room.ID)

	c2 := env.registerClient(t, u2.ID)
	msg := &ws.Message{Type: ws.TypeJoinChatRoom, RoomID: &room.ID}
	require.NoError(t, env.chat.HandleMessage(c2, msg))

	// Пропущенные уходят только присоединившемуся
	missedEvent := recvEvent(t, c2)
	require.Equal(t, ws.TypeLoadMissedMessages, missedEvent.Type)
	var missed []dto.MessageResponse
	require.NoError(t, json.Unmarshal(missedEvent.Data, &missed))
	require.Len(t, missed, 1)
	assert.Equal(t, unread.ID, missed[0].ID)

	// user_joined получает вся группа
	joined1 := recvEvent(t, c1)
	assert.Equal(t, ws.TypeUserJoined, joined1.Type)
	assert.Equal(t, u2.ID, joined1.UserID)

	joined2 := recvEvent(t, c2)
	assert.Equal(t, ws.TypeUserJoined, joined2.Type)

	outsider := env.createUser(t, "mallory")
	c3 := env.registerClient(t, outsider.ID)
	assert.ErrorIs(t, env.chat.HandleMessage(c3, msg), ErrNotParticipant)
}

func TestHandleDisconnectNotifiesCounterparts(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.createUser(t, "alice")
	u2 := env.createUser(t, "bob")
	c1, c2, roomID := connectPair(t, env, u1, u2)

	env.chat.HandleDisconnect(c1)

	event := recvEvent(t, c2)
	assert.Equal(t, ws.TypeUserDisconnected, event.Type)
	assert.Equal(t, u1.ID, event.UserID)

	var presence dto.PresencePayload
	require.NoError(t, json.Unmarshal(event.Data, &presence))
	assert.Equal(t, roomID, presence.RoomID)

	assert.Empty(t, c1.GetRooms())
}
