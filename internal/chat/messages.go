package chat

import (
	"context"
	"fmt"
	"log/slog"

	"majlis-chat/internal/domain"
	"majlis-chat/internal/store"
)

// SendMessage delivers req to roomID, or to the current room when roomID
// is zero. The returned message is the server-confirmed copy.
func (s *Session) SendMessage(ctx context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	roomID, err := s.resolveRoom(roomID)
	if err != nil {
		return domain.Message{}, err
	}
	st := s.store.Pin()
	if s.disarmOutbound(roomID) {
		if err := s.signalTyping(ctx, roomID, false); err != nil {
			s.logger.Debug("stopping typing before send", slog.Int64("room_id", roomID), slog.Any("error", err))
		}
	}
	msg, err := s.outbox.SendVia(ctx, st, roomID, req)
	if err := s.track(st, "send_message", err); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// GetMessages fetches one history page and merges it into the room.
func (s *Session) GetMessages(ctx context.Context, roomID int64, page domain.MessagePage) ([]domain.Message, error) {
	roomID, err := s.resolveRoom(roomID)
	if err != nil {
		return nil, err
	}
	return s.getMessages(ctx, s.store.Pin(), roomID, page)
}

func (s *Session) getMessages(ctx context.Context, st *store.Store, roomID int64, page domain.MessagePage) ([]domain.Message, error) {
	st.SetLoading(true)
	defer st.SetLoading(false)

	msgs, err := s.api.ListMessages(ctx, roomID, page)
	if err := s.track(st, "get_messages", err); err != nil {
		return nil, fmt.Errorf("messages of room %d: %w", roomID, err)
	}
	for i := range msgs {
		if _, ok := msgs[i].TargetRoom(); !ok {
			msgs[i] = msgs[i].InRoom(roomID)
		}
	}
	st.PrependHistory(roomID, msgs)
	return msgs, nil
}

func (s *Session) DeleteMessage(ctx context.Context, roomID, messageID int64) error {
	st := s.store.Pin()
	err := s.api.DeleteMessage(ctx, messageID)
	if err := s.track(st, "delete_message", err); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	st.MarkDeleted(roomID, messageID)
	return nil
}
