package delivery

import (
	"testing"

	"majlis-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.User{ID: 1, Username: "alice"}
	bob   = domain.User{ID: 2, Username: "bob"}
	carol = domain.User{ID: 3, Username: "carol"}
)

func newTestBackend() *Backend {
	b := NewBackend()
	b.RegisterUser("tok-alice", alice)
	b.RegisterUser("tok-bob", bob)
	b.RegisterUser("tok-carol", carol)
	return b
}

func TestJoinRules(t *testing.T) {
	b := newTestBackend()
	room, err := b.CreateRoom(alice, domain.CreateRoomRequest{Name: "duo", MaxMembers: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.RoomTypeGroup, room.Type)

	joined, err := b.JoinRoom(bob, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.CurrentMembers)

	_, err = b.JoinRoom(carol, room.ID)
	assert.ErrorIs(t, err, ErrRoomFull)

	again, err := b.JoinRoom(bob, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.CurrentMembers)

	secret, err := b.CreateRoom(alice, domain.CreateRoomRequest{Name: "secret", IsPrivate: true})
	require.NoError(t, err)
	_, err = b.JoinRoom(bob, secret.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = b.JoinRoom(bob, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRoomsVisibilityAndFilters(t *testing.T) {
	b := newTestBackend()
	_, _ = b.CreateRoom(alice, domain.CreateRoomRequest{Name: "Chess Club", GameID: 4})
	_, _ = b.CreateRoom(alice, domain.CreateRoomRequest{Name: "hidden", IsPrivate: true})
	_, _ = b.CreateRoom(bob, domain.CreateRoomRequest{Name: "general"})

	rooms, total := b.ListRooms(bob.ID, domain.RoomFilter{})
	assert.Equal(t, 2, total)
	assert.Len(t, rooms, 2)

	rooms, _ = b.ListRooms(alice.ID, domain.RoomFilter{})
	assert.Len(t, rooms, 3)

	rooms, _ = b.ListRooms(bob.ID, domain.RoomFilter{Search: "chess"})
	require.Len(t, rooms, 1)
	assert.Equal(t, "Chess Club", rooms[0].Name)

	rooms, _ = b.ListRooms(bob.ID, domain.RoomFilter{GameID: 4})
	assert.Len(t, rooms, 1)

	rooms, _ = b.ListRooms(alice.ID, domain.RoomFilter{Page: 1, Size: 2})
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)
}

func TestMessagesPageFromNewest(t *testing.T) {
	b := newTestBackend()
	room, _ := b.CreateRoom(alice, domain.CreateRoomRequest{Name: "r"})
	for _, c := range []string{"one", "two", "three", "four", "five"} {
		_, err := b.PostMessage(alice, room.ID, domain.SendMessageRequest{Content: c})
		require.NoError(t, err)
	}

	page, total, err := b.Messages(alice.ID, room.ID, domain.MessagePage{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "four", page[0].Content)
	assert.Equal(t, "five", page[1].Content)

	page, _, err = b.Messages(alice.ID, room.ID, domain.MessagePage{Page: 2, Size: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "one", page[0].Content)

	page, _, err = b.Messages(alice.ID, room.ID, domain.MessagePage{Before: 3})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	_, _, err = b.Messages(bob.ID, room.ID, domain.MessagePage{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPostMessageUpdatesRoom(t *testing.T) {
	b := newTestBackend()
	room, _ := b.CreateRoom(alice, domain.CreateRoomRequest{Name: "r"})

	_, err := b.PostMessage(alice, room.ID, domain.SendMessageRequest{Content: "  "})
	assert.ErrorIs(t, err, ErrInvalid)

	msg, err := b.PostMessage(alice, room.ID, domain.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeText, msg.MessageType)
	id, _ := msg.TargetRoom()
	assert.Equal(t, room.ID, id)

	rooms, _ := b.ListRooms(alice.ID, domain.RoomFilter{})
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "hi", rooms[0].LastMessage.Content)
}

func TestDeleteMessageOwnOnly(t *testing.T) {
	b := newTestBackend()
	room, _ := b.CreateRoom(alice, domain.CreateRoomRequest{Name: "r"})
	_, _ = b.JoinRoom(bob, room.ID)
	msg, _ := b.PostMessage(alice, room.ID, domain.SendMessageRequest{Content: "hi"})

	_, err := b.DeleteMessage(bob, msg.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	roomID, err := b.DeleteMessage(alice, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, roomID)

	page, _, _ := b.Messages(alice.ID, room.ID, domain.MessagePage{})
	assert.True(t, page[0].IsDeleted)
	assert.Empty(t, page[0].Content)
}

func TestDirectRoomIsReused(t *testing.T) {
	b := newTestBackend()
	first, err := b.DirectRoom(alice, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomTypeDirect, first.Type)
	assert.True(t, first.IsPrivate)

	second, err := b.DirectRoom(bob, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = b.DirectRoom(alice, alice.ID)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = b.DirectRoom(alice, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMembersAndLeave(t *testing.T) {
	b := newTestBackend()
	room, _ := b.CreateRoom(alice, domain.CreateRoomRequest{Name: "r"})

	_, err := b.AddMember(bob, room.ID, carol.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	added, err := b.AddMember(alice, room.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, carol, added)

	members, err := b.Members(room.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.User{alice, carol}, members)

	require.NoError(t, b.LeaveRoom(carol, room.ID))
	assert.ErrorIs(t, b.LeaveRoom(carol, room.ID), ErrInvalid)
	assert.Equal(t, []int64{alice.ID}, b.MemberIDs(room.ID))
}
