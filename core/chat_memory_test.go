package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMatch(t *testing.T) {

	t.Run("first requester waits", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		result, err := f.requestMatch(1, "u1", "calm")
		require.Nil(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 1, f.service.Stats().Waiting)
	})

	t.Run("second requester is paired with the waiter", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.requestMatch(1, "u1", "calm")
		result, err := f.requestMatch(2, "u2", "calm")
		require.Nil(t, err)
		require.NotNil(t, result)

		assert.Equal(t, "u2", result.Requester.UserID)
		assert.Equal(t, "u1", result.Partner.UserID)
		assert.Equal(t, 1, result.Partner.ConnID)
		assert.NotEmpty(t, result.RoomID)

		// both sides left the pool and are members of the new room
		assert.Equal(t, 0, f.service.Stats().Waiting)
		room, ok := f.service.rooms.Get(result.RoomID)
		require.True(t, ok)
		assert.Len(t, room.Members, 2)
	})

	t.Run("same mood wins over longer wait", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.requestMatch(1, "older", "excited")
		f.requestMatch(2, "newer", "calm")

		result, err := f.requestMatch(3, "u3", "calm")
		require.Nil(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "newer", result.Partner.UserID)
	})

	t.Run("no mood overlap pairs with the oldest waiter", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.requestMatch(1, "first", "excited")
		f.requestMatch(2, "second", "tired")

		result, err := f.requestMatch(3, "u3", "calm")
		require.Nil(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "first", result.Partner.UserID)
	})

	t.Run("duplicate request is rejected without state change", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.requestMatch(1, "u1", "calm")
		result, err := f.requestMatch(1, "u1", "calm")
		require.ErrorIs(t, err, ErrDuplicateRequest)
		assert.Nil(t, result)
		assert.Equal(t, 1, f.service.Stats().Waiting)
	})

	t.Run("active partners are not re-matched", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.pair(1, "u1", 2, "u2")

		// both are still in the room together, so a new round of requests
		// must leave them waiting rather than pair them again
		result, err := f.requestMatch(1, "u1", "calm")
		require.Nil(t, err)
		require.Nil(t, result)
		result, err = f.requestMatch(2, "u2", "calm")
		require.Nil(t, err)
		assert.Nil(t, result)
	})

	t.Run("leaving the room clears the re-match exclusion", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")

		_, err := f.service.LeaveRoom(f.ctx, 1, roomID)
		require.Nil(t, err)

		f.requestMatch(1, "u1", "calm")
		result, err := f.requestMatch(2, "u2", "calm")
		require.Nil(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "u1", result.Partner.UserID)
	})

	t.Run("room cap rejects further requests", func(t *testing.T) {
		f := NewChatFixture(t, WithMaxRooms(1))
		defer f.tearDown()

		f.pair(1, "u1", 2, "u2")

		result, err := f.requestMatch(1, "u1", "calm")
		require.ErrorIs(t, err, ErrMaxRoomsExceeded)
		assert.Nil(t, result)
		assert.Equal(t, 0, f.service.Stats().Waiting)
	})

	t.Run("a user never matches itself", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		// same user id from a second connection; the pool rejects the
		// duplicate rather than pairing the user with itself
		f.requestMatch(1, "u1", "calm")
		result, err := f.requestMatch(2, "u1", "calm")
		require.ErrorIs(t, err, ErrDuplicateRequest)
		assert.Nil(t, result)
	})
}

func TestCancelMatch(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()

	f.requestMatch(1, "u1", "calm")
	assert.True(t, f.service.CancelMatch(1))
	assert.False(t, f.service.CancelMatch(1))
	assert.Equal(t, 0, f.service.Stats().Waiting)

	// unknown connection
	assert.False(t, f.service.CancelMatch(99))
}

func TestJoinRoom(t *testing.T) {

	t.Run("requires registration", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		_, err := f.service.JoinRoom(f.ctx, 1, "r1")
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("creates the room on first join", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.register(1, "u1", "ann", "calm")
		result, err := f.service.JoinRoom(f.ctx, 1, "r1")
		require.Nil(t, err)
		assert.Equal(t, "u1", result.Member.UserID)
		assert.Empty(t, result.Others)
		assert.Empty(t, result.Messages)
		assert.Equal(t, 1, f.service.Stats().Rooms)
	})

	t.Run("replays the full log to the joiner", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")
		_, err := f.service.JoinRoom(f.ctx, 1, roomID)
		require.Nil(t, err)
		_, err = f.service.SendMessage(f.ctx, 1, roomID, "hello")
		require.Nil(t, err)
		_, err = f.service.SendMessage(f.ctx, 1, roomID, "anyone there")
		require.Nil(t, err)

		f.register(3, "u3", "cas", "calm")
		result, err := f.service.JoinRoom(f.ctx, 3, roomID)
		require.Nil(t, err)
		require.Len(t, result.Messages, 2)
		assert.Equal(t, "hello", result.Messages[0].Data)
		assert.Equal(t, "anyone there", result.Messages[1].Data)
	})

	t.Run("rejoin after reconnect keeps one membership", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.register(1, "u1", "ann", "calm")
		_, err := f.service.JoinRoom(f.ctx, 1, "r1")
		require.Nil(t, err)

		f.register(5, "u1", "ann", "calm")
		result, err := f.service.JoinRoom(f.ctx, 5, "r1")
		require.Nil(t, err)
		assert.True(t, result.Rejoined)

		room, _ := f.service.rooms.Get("r1")
		require.Len(t, room.Members, 1)
		assert.Equal(t, 5, room.Members[0].ConnID)
	})
}

func TestLeaveRoom(t *testing.T) {

	t.Run("room and log survive the last leaver", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")
		_, err := f.service.SendMessage(f.ctx, 1, roomID, "bye")
		require.Nil(t, err)

		result, err := f.service.LeaveRoom(f.ctx, 1, roomID)
		require.Nil(t, err)
		assert.Equal(t, "u1", result.Member.UserID)
		require.Len(t, result.Others, 1)

		_, err = f.service.LeaveRoom(f.ctx, 2, roomID)
		require.Nil(t, err)

		assert.Equal(t, 1, f.service.Stats().Rooms)
		room, ok := f.service.rooms.Get(roomID)
		require.True(t, ok)
		assert.Empty(t, room.Members)
		assert.Len(t, room.Messages, 1)
	})

	t.Run("leaving a room the user is not in fails", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		f.register(1, "u1", "ann", "calm")
		_, err := f.service.LeaveRoom(f.ctx, 1, "ghost")
		require.ErrorIs(t, err, ErrInvalidRoom)
	})
}

func TestSendMessage(t *testing.T) {

	t.Run("receivers exclude the sender", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")
		result, err := f.service.SendMessage(f.ctx, 1, roomID, "hello")
		require.Nil(t, err)
		assert.Equal(t, "u1", result.Message.Sender)
		assert.Equal(t, "hello", result.Message.Data)
		assert.NotEmpty(t, result.Message.ID)
		assert.Equal(t, []int{2}, result.Receivers)
	})

	t.Run("non-member send is rejected", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")
		f.register(3, "u3", "cas", "calm")
		_, err := f.service.SendMessage(f.ctx, 3, roomID, "intruding")
		require.ErrorIs(t, err, ErrInvalidRoom)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")
		_, err := f.service.SendMessage(f.ctx, 1, roomID, "")
		require.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestTyping(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()

	roomID := f.pair(1, "u1", 2, "u2")
	result, err := f.service.Typing(1, roomID, true)
	require.Nil(t, err)
	assert.Equal(t, "u1", result.UserID)
	assert.True(t, result.Typing)
	assert.Equal(t, []int{2}, result.Receivers)

	// nothing is persisted
	room, _ := f.service.rooms.Get(roomID)
	assert.Empty(t, room.Messages)
}

func TestDisconnect(t *testing.T) {

	t.Run("unregistered connection is a no-op", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		result, err := f.service.Disconnect(f.ctx, 1)
		require.Nil(t, err)
		assert.Nil(t, result.Session)
	})

	t.Run("cleans waiting entry and memberships", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		roomID := f.pair(1, "u1", 2, "u2")
		_, err := f.requestMatch(1, "u1", "calm")
		require.Nil(t, err)

		result, err := f.service.Disconnect(f.ctx, 1)
		require.Nil(t, err)
		require.NotNil(t, result.Session)
		assert.Equal(t, "u1", result.Session.UserID)
		assert.True(t, result.Dequeued)
		require.Len(t, result.Left, 1)
		assert.Equal(t, roomID, result.Left[0].RoomID)
		require.Len(t, result.Left[0].Others, 1)
		assert.Equal(t, "u2", result.Left[0].Others[0].UserID)

		// the room itself survives
		assert.Equal(t, 1, f.service.Stats().Rooms)
		assert.Equal(t, 0, f.service.Stats().Waiting)
	})
}

func TestReset(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()

	roomID := f.pair(1, "u1", 2, "u2")
	_, err := f.service.SendMessage(f.ctx, 1, roomID, "last words")
	require.Nil(t, err)
	_, err = f.requestMatch(3, "u3", "calm")
	require.Nil(t, err)

	result, err := f.service.Reset(f.ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Rooms)
	assert.Equal(t, 1, result.Messages)
	assert.Equal(t, 1, result.Waiting)

	stats := f.service.Stats()
	assert.Equal(t, 0, stats.Rooms)
	assert.Equal(t, 0, stats.Waiting)
	// sessions survive the reset, only the day's state is dropped
	assert.Equal(t, 3, stats.Connected)

	// joining with a pre-reset room id lands in a brand-new empty room,
	// not a replay of the old conversation
	joined, err := f.service.JoinRoom(f.ctx, 1, roomID)
	require.Nil(t, err)
	assert.Empty(t, joined.Messages)
	assert.Empty(t, joined.Others)
	assert.Equal(t, 1, f.service.Stats().Rooms)
}

func TestResetArchiveFailure(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()

	archive := &memArchive{resetErr: errors.New("disk full")}
	service := NewMemoryChatService(testLogger(), archive, WithClock(f.clock.Now))

	_, err := service.Register(f.ctx, 1, RegisterInput{UserID: "u1", Nickname: "ann"})
	require.Nil(t, err)
	_, err = service.JoinRoom(f.ctx, 1, "room_x")
	require.Nil(t, err)

	// the in-memory purge succeeded, so the reset reports success even
	// though the archive could not be truncated
	result, err := service.Reset(f.ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, result.Rooms)
	assert.Equal(t, 1, archive.resets)
	assert.Equal(t, 0, service.Stats().Rooms)
}

func TestSnapshot(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()

	f.pair(1, "u1", 2, "u2")
	_, err := f.requestMatch(3, "u3", "tired")
	require.Nil(t, err)

	snapshot := f.service.Snapshot()
	assert.Len(t, snapshot.ConnectedUsers, 3)
	require.Len(t, snapshot.WaitingUsers, 1)
	assert.Equal(t, "u3", snapshot.WaitingUsers[0].UserID)
	require.Len(t, snapshot.ActiveRooms, 1)
	assert.Equal(t, 2, snapshot.ActiveRooms[0].UserCount)

	stats := f.service.Stats()
	assert.Equal(t, Stats{Connected: 3, Waiting: 1, Rooms: 1}, stats)
}

func TestRestore(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()

	archive := &memArchive{}
	archive.rooms = []*Room{
		{
			ID:        "r1",
			CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
			Messages: []Message{
				{ID: "m1", RoomID: "r1", Data: "from before the restart"},
			},
		},
	}

	service := NewMemoryChatService(testLogger(), archive)
	restored, err := service.Restore(f.ctx)
	require.Nil(t, err)
	assert.Equal(t, 1, restored)

	f2 := service
	_, err = f2.Register(f.ctx, 1, RegisterInput{UserID: "u1", Nickname: "ann"})
	require.Nil(t, err)
	result, err := f2.JoinRoom(f.ctx, 1, "r1")
	require.Nil(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "from before the restart", result.Messages[0].Data)
}
