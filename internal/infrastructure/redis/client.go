package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"majlis-chat/internal/domain"

	"github.com/go-redis/redis/v8"
)

// MessagesPerRoom bounds how much history a snapshot keeps per room.
const MessagesPerRoom = 50

type Snapshot struct {
	Rooms    []domain.Room
	Messages map[int64][]domain.Message
}

// SnapshotFrom keeps the rooms and the newest confirmed messages of each
// room. Placeholders are never cached.
func SnapshotFrom(state domain.ChatState, limit int) Snapshot {
	snap := Snapshot{
		Rooms:    append([]domain.Room(nil), state.Rooms...),
		Messages: make(map[int64][]domain.Message, len(state.Messages)),
	}
	for roomID, list := range state.Messages {
		kept := make([]domain.Message, 0, len(list))
		for _, m := range list {
			if !m.IsPending() {
				kept = append(kept, m)
			}
		}
		if limit > 0 && len(kept) > limit {
			kept = kept[len(kept)-limit:]
		}
		if len(kept) > 0 {
			snap.Messages[roomID] = kept
		}
	}
	return snap
}

func roomsKey(userID int64) string {
	return fmt.Sprintf("chat:%d:rooms", userID)
}

func messagesKey(userID int64) string {
	return fmt.Sprintf("chat:%d:messages", userID)
}

func (r *RedisClient) SaveSnapshot(ctx context.Context, userID int64, state domain.ChatState) error {
	snap := SnapshotFrom(state, MessagesPerRoom)
	roomsJSON, err := json.Marshal(snap.Rooms)
	if err != nil {
		return err
	}
	fields := make(map[string]interface{}, len(snap.Messages))
	for roomID, list := range snap.Messages {
		data, err := json.Marshal(list)
		if err != nil {
			return err
		}
		fields[strconv.FormatInt(roomID, 10)] = data
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomsKey(userID), roomsJSON, r.ttl)
		pipe.Del(ctx, messagesKey(userID))
		if len(fields) > 0 {
			pipe.HSet(ctx, messagesKey(userID), fields)
			pipe.Expire(ctx, messagesKey(userID), r.ttl)
		}
		return nil
	})
	return err
}

// LoadSnapshot returns nil without error when nothing is cached.
func (r *RedisClient) LoadSnapshot(ctx context.Context, userID int64) (*Snapshot, error) {
	roomsJSON, err := r.client.Get(ctx, roomsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Messages: map[int64][]domain.Message{}}
	if err := json.Unmarshal(roomsJSON, &snap.Rooms); err != nil {
		return nil, fmt.Errorf("decode cached rooms: %w", err)
	}

	fields, err := r.client.HGetAll(ctx, messagesKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	for field, data := range fields {
		roomID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var list []domain.Message
		if err := json.Unmarshal([]byte(data), &list); err != nil {
			continue
		}
		snap.Messages[roomID] = list
	}
	return snap, nil
}

func (r *RedisClient) Forget(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, roomsKey(userID), messagesKey(userID)).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
