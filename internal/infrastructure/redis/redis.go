package redis

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultSnapshotTTL = 24 * time.Hour

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(host, port, password string, ttl time.Duration) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisClient{client: client, ttl: ttl}
}
