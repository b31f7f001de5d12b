package cli

import (
	"context"
	"log/slog"

	"majlis-chat/internal/chat"
	"majlis-chat/internal/domain"
	"majlis-chat/internal/infrastructure/kafka"
	"majlis-chat/internal/infrastructure/redis"
	"majlis-chat/internal/reconnect"
	"majlis-chat/internal/rest"
	"majlis-chat/internal/transport"

	"github.com/google/uuid"
)

// newSession builds a session from configuration. The returned cleanup
// releases the cache and tap connections.
func (a *app) newSession(ctx context.Context) (*chat.Session, func()) {
	cfg := a.cfg
	id := uuid.NewString()
	opts := chat.Options{
		ID:       id,
		Token:    cfg.Token,
		UserID:   cfg.UserID,
		User:     domain.User{ID: cfg.UserID, Username: cfg.Username},
		API:      rest.NewClient(cfg.APIURL, func() string { return cfg.Token }, cfg.RequestTimeout),
		Dialer:   transport.NewWSDialer(a.logger),
		Endpoint: cfg.WSURL,
		Reconnect: reconnect.Config{
			MaxAttempts: cfg.MaxReconnectAttempts,
			BaseDelay:   cfg.ReconnectBaseDelay,
			MaxDelay:    cfg.ReconnectMaxDelay,
			DialTimeout: cfg.RequestTimeout,
		},
		Logger: a.logger,
	}

	var closers []func() error
	if cfg.RedisEnabled() {
		rc := redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.SnapshotTTL)
		if err := rc.Ping(ctx); err != nil {
			a.logger.Warn("snapshot cache unavailable", slog.Any("error", err))
			_ = rc.Close()
		} else {
			opts.Cache = rc
			closers = append(closers, rc.Close)
		}
	}
	if cfg.KafkaEnabled() {
		producer := kafka.NewKafkaProducer(cfg.KafkaBrokers, id, cfg.UserID)
		opts.Tap = producer
		closers = append(closers, producer.Close)
	}

	return chat.NewSession(opts), func() {
		for _, c := range closers {
			if err := c(); err != nil {
				a.logger.Debug("closing session dependency", slog.Any("error", err))
			}
		}
	}
}
