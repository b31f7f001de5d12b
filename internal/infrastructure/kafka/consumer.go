package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type RecordHandler interface {
	HandleRecord(topic string, rec Record)
}

// KafkaConsumer tails the tap topics, one reader per topic.
type KafkaConsumer struct {
	readers []*kafka.Reader
	handler RecordHandler
	logger  *slog.Logger
}

func NewKafkaConsumer(brokers []string, groupID string, topics []string, handler RecordHandler, logger *slog.Logger) *KafkaConsumer {
	var readers []*kafka.Reader

	for _, topic := range topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 100 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			MaxWait:        100 * time.Millisecond,
		})
		readers = append(readers, reader)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaConsumer{
		readers: readers,
		handler: handler,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, reader := range k.readers {
		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					k.logger.Error("recovered from panic in tap reader", slog.String("topic", r.Config().Topic), slog.Any("panic", rec))
				}
			}()

			for {
				m, err := r.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil || errors.Is(err, context.Canceled) {
						return
					}
					k.logger.Warn("read tap message", slog.String("topic", r.Config().Topic), slog.Any("error", err))
					continue
				}
				k.handleMessage(m.Topic, m.Value)
			}
		}(reader)
	}
	wg.Wait()
	return ctx.Err()
}

func (k *KafkaConsumer) handleMessage(topic string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Error("recovered from panic in tap handler", slog.String("topic", topic), slog.Any("panic", r))
		}
	}()

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		k.logger.Warn("decode tap record", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	if k.handler != nil {
		k.handler.HandleRecord(topic, rec)
	}
}

func (k *KafkaConsumer) Close() error {
	var errs []error
	for _, r := range k.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
