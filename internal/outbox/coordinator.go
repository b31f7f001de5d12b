// Package outbox gives locally sent messages an immediate placeholder and
// reconciles it with the server's confirmation.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"majlis-chat/internal/domain"

	"github.com/google/uuid"
)

type Store interface {
	ApplyNewMessage(msg domain.Message) bool
	ReconcileConfirmed(roomID int64, content string, confirmed domain.Message) bool
	RemovePending(roomID, localID int64) bool
}

type Persister interface {
	SendMessage(ctx context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error)
}

// Socket is the best-effort fan-out path.
type Socket interface {
	State() domain.ConnectionState
	SendJSON(v interface{}) error
}

type Coordinator struct {
	store  Store
	api    Persister
	socket Socket
	sender func() domain.User
	logger *slog.Logger
	lastID atomic.Int64
}

func NewCoordinator(store Store, api Persister, socket Socket, sender func() domain.User, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, api: api, socket: socket, sender: sender, logger: logger}
}

// outboundMessage is the socket payload of a MESSAGE frame.
type outboundMessage struct {
	RoomID      int64              `json:"roomId"`
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"messageType"`
	ReplyToID   int64              `json:"replyToId,omitempty"`
	FileURL     string             `json:"fileUrl,omitempty"`
	FileName    string             `json:"fileName,omitempty"`
	Sender      domain.User        `json:"sender"`
}

// NextLocalID hands out placeholder ids -1, -2, ... for this session.
func (c *Coordinator) NextLocalID() int64 {
	return c.lastID.Add(-1)
}

// Send inserts a pending placeholder, pushes the message over the socket
// when connected and persists it through the API. The placeholder is
// replaced in place on success and removed on failure.
func (c *Coordinator) Send(ctx context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	return c.SendVia(ctx, c.store, roomID, req)
}

// SendVia is Send writing through st instead of the coordinator's store,
// typically a view that stops accepting writes once the session is reset.
func (c *Coordinator) SendVia(ctx context.Context, st Store, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	if req.MessageType == "" {
		req.MessageType = domain.MessageTypeText
	}
	var sender domain.User
	if c.sender != nil {
		sender = c.sender()
	}

	localID := c.NextLocalID()
	placeholder := domain.Message{
		ID:          localID,
		Room:        &domain.RoomRef{ID: roomID},
		Sender:      &sender,
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		CreatedAt:   domain.Now(),
		Delivery:    domain.Pending,
	}
	if req.ReplyToID != 0 {
		placeholder.ReplyTo = &domain.MessageRef{ID: req.ReplyToID}
	}
	st.ApplyNewMessage(placeholder)

	if c.socket != nil && c.socket.State() == domain.Connected {
		frame := domain.NewFrame(domain.FrameMessage)
		frame.RequestID = uuid.NewString()
		frame.RoomID = roomID
		frame.Payload = outboundMessage{
			RoomID:      roomID,
			Content:     req.Content,
			MessageType: req.MessageType,
			ReplyToID:   req.ReplyToID,
			FileURL:     req.FileURL,
			FileName:    req.FileName,
			Sender:      sender,
		}
		if err := c.socket.SendJSON(frame); err != nil {
			c.logger.Warn("socket fan-out failed", slog.Int64("room_id", roomID), slog.Any("error", err))
		}
	}

	confirmed, err := c.api.SendMessage(ctx, roomID, req)
	if err != nil {
		st.RemovePending(roomID, localID)
		c.logger.Warn("message rolled back", slog.Int64("room_id", roomID), slog.Int64("local_id", localID), slog.Any("error", err))
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}

	confirmed.Delivery = domain.Confirmed
	if _, ok := confirmed.TargetRoom(); !ok {
		confirmed = confirmed.InRoom(roomID)
	}
	st.ReconcileConfirmed(roomID, req.Content, confirmed)
	return confirmed, nil
}
