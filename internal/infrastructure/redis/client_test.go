package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"majlis-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFromDropsPlaceholdersAndTrims(t *testing.T) {
	state := domain.EmptyState()
	state.Rooms = []domain.Room{{ID: 1, Name: "lobby"}}
	var list []domain.Message
	for i := int64(1); i <= 60; i++ {
		list = append(list, domain.Message{ID: i, Content: "m"})
	}
	list = append(list, domain.Message{ID: -1, Content: "pending", Delivery: domain.Pending})
	state.Messages[1] = list
	state.Messages[2] = []domain.Message{{ID: -2, Delivery: domain.Pending}}

	snap := SnapshotFrom(state, MessagesPerRoom)
	require.Len(t, snap.Messages[1], MessagesPerRoom)
	assert.Equal(t, int64(11), snap.Messages[1][0].ID)
	assert.Equal(t, int64(60), snap.Messages[1][MessagesPerRoom-1].ID)
	assert.NotContains(t, snap.Messages, int64(2))
	assert.Len(t, snap.Rooms, 1)
}

// Runs only against a live server: REDIS_HOST=localhost go test ./...
func TestSnapshotRoundTrip(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	r := NewRedisClient(host, port, os.Getenv("REDIS_PASSWORD"), time.Minute)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Ping(ctx))

	const userID = 987654321
	defer r.Forget(ctx, userID)

	snap, err := r.LoadSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, snap)

	state := domain.EmptyState()
	state.Rooms = []domain.Room{{ID: 1, Name: "lobby", Type: domain.RoomTypeGroup}}
	state.Messages[1] = []domain.Message{{ID: 4, Content: "gg", Room: &domain.RoomRef{ID: 1}}}
	require.NoError(t, r.SaveSnapshot(ctx, userID, state))

	snap, err = r.LoadSnapshot(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "lobby", snap.Rooms[0].Name)
	require.Len(t, snap.Messages[1], 1)
	assert.Equal(t, "gg", snap.Messages[1][0].Content)
}
