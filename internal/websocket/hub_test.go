package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, userID uuid.UUID) *Client {
	return NewClient(h, nil, userID)
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	default:
		t.Fatal("expected a pending message")
	}
	return nil
}

func TestSendToUserFansOutToAllConnections(t *testing.T) {
	h := NewHub()
	userID := uuid.New()

	tab1 := newTestClient(h, userID)
	tab2 := newTestClient(h, userID)
	other := newTestClient(h, uuid.New())

	h.registerClient(tab1)
	h.registerClient(tab2)
	h.registerClient(other)

	h.SendToUser(userID, []byte("hi"))

	assert.Equal(t, []byte("hi"), receive(t, tab1))
	assert.Equal(t, []byte("hi"), receive(t, tab2))
	assert.Empty(t, other.Send)
}

func TestSendToGroupReachesOnlyJoined(t *testing.T) {
	h := NewHub()
	roomID := uuid.New()

	joined1 := newTestClient(h, uuid.New())
	joined2 := newTestClient(h, uuid.New())
	outsider := newTestClient(h, uuid.New())

	h.registerClient(joined1)
	h.registerClient(joined2)
	h.registerClient(outsider)

	h.JoinGroup(joined1, roomID)
	h.JoinGroup(joined2, roomID)

	h.SendToGroup(roomID, []byte("room msg"))

	assert.Equal(t, []byte("room msg"), receive(t, joined1))
	assert.Equal(t, []byte("room msg"), receive(t, joined2))
	assert.Empty(t, outsider.Send)
}

func TestLeaveGroupStopsDelivery(t *testing.T) {
	h := NewHub()
	roomID := uuid.New()

	client := newTestClient(h, uuid.New())
	h.registerClient(client)
	h.JoinGroup(client, roomID)
	require.True(t, client.IsInRoom(roomID))

	h.LeaveGroup(client, roomID)
	assert.False(t, client.IsInRoom(roomID))

	h.SendToGroup(roomID, []byte("gone"))
	assert.Empty(t, client.Send)
}

func TestUnregisterCleansGroupsAndUserIndex(t *testing.T) {
	h := NewHub()
	roomID := uuid.New()
	userID := uuid.New()

	client := newTestClient(h, userID)
	h.registerClient(client)
	h.JoinGroup(client, roomID)
	require.True(t, h.IsUserOnline(userID))

	h.unregisterClient(client)

	assert.False(t, h.IsUserOnline(userID))
	assert.Empty(t, h.GetGroupUsers(roomID))

	// Канал закрыт hub-ом
	_, open := <-client.Send
	assert.False(t, open)
}

func TestGroupMembershipPerConnection(t *testing.T) {
	h := NewHub()
	roomA := uuid.New()
	roomB := uuid.New()

	client := newTestClient(h, uuid.New())
	h.registerClient(client)
	h.JoinGroup(client, roomA)
	h.JoinGroup(client, roomB)

	assert.ElementsMatch(t, []uuid.UUID{roomA, roomB}, client.GetRooms())

	users := h.GetGroupUsers(roomA)
	require.Len(t, users, 1)
	assert.Equal(t, client.UserID, users[0])
}
