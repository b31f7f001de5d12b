package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"majlis-chat/internal/dispatch"

	"github.com/segmentio/kafka-go"
)

const (
	TopicChatMessages     = "chat-messages"
	TopicTypingIndicators = "typing-indicators"
	TopicConnectionStatus = "connection-status"
)

var Topics = []string{TopicChatMessages, TopicTypingIndicators, TopicConnectionStatus}

// Record is the value written for every tapped event.
type Record struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	UserID     int64           `json:"user_id"`
	Payload    json.RawMessage `json:"payload"`
	ObservedAt time.Time       `json:"observed_at"`
}

// KafkaProducer republishes decoded inbound events for other services.
type KafkaProducer struct {
	Writer    *kafka.Writer
	sessionID string
	userID    int64
}

func NewKafkaProducer(brokers []string, sessionID string, userID int64) *KafkaProducer {
	writer := &kafka.Writer{
		Addr: kafka.TCP(brokers...),
		// Keyed by room so one room's events stay ordered on one partition.
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaProducer{Writer: writer, sessionID: sessionID, userID: userID}
}

func (k *KafkaProducer) Publish(ctx context.Context, ev dispatch.Event) error {
	msg, err := k.encode(ev, time.Now().UTC())
	if err != nil {
		return err
	}
	return k.Writer.WriteMessages(ctx, msg)
}

func (k *KafkaProducer) encode(ev dispatch.Event, now time.Time) (kafka.Message, error) {
	payload, roomID := payloadOf(ev)
	data, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, err
	}
	value, err := json.Marshal(Record{
		Type:       ev.Kind(),
		SessionID:  k.sessionID,
		UserID:     k.userID,
		Payload:    data,
		ObservedAt: now,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{Topic: TopicFor(ev), Value: value, Time: now}
	if roomID != 0 {
		msg.Key = []byte(strconv.FormatInt(roomID, 10))
	}
	return msg, nil
}

func TopicFor(ev dispatch.Event) string {
	switch ev.(type) {
	case dispatch.MessageEvent, dispatch.RoomUpdatedEvent:
		return TopicChatMessages
	case dispatch.TypingEvent:
		return TopicTypingIndicators
	default:
		return TopicConnectionStatus
	}
}

func payloadOf(ev dispatch.Event) (interface{}, int64) {
	switch e := ev.(type) {
	case dispatch.MessageEvent:
		roomID, _ := e.Message.TargetRoom()
		return e.Message, roomID
	case dispatch.TypingEvent:
		return e.Indicator, e.Indicator.RoomID
	case dispatch.MembershipEvent:
		return e.Membership, e.Membership.RoomID
	case dispatch.RoomUpdatedEvent:
		return e.Room, e.Room.ID
	case dispatch.UserStatusEvent:
		return e.Status, 0
	case dispatch.ControlEvent:
		return e.Body, 0
	}
	return nil, 0
}

func (k *KafkaProducer) Close() error {
	return k.Writer.Close()
}
