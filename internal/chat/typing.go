package chat

import (
	"context"
	"log/slog"

	"majlis-chat/internal/domain"
)

// armInbound restarts the expiry window of one remote typist.
func (s *Session) armInbound(key typingKey, expire func()) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if prev, ok := s.inbound[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	t := s.after(TypingWindow, func() {
		s.timerMu.Lock()
		cur, ok := s.inbound[key]
		if !ok || cur.seq != seq {
			s.timerMu.Unlock()
			return
		}
		delete(s.inbound, key)
		s.timerMu.Unlock()
		expire()
	})
	s.inbound[key] = expiry{timer: t, seq: seq}
}

func (s *Session) disarmInbound(key typingKey) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if prev, ok := s.inbound[key]; ok {
		prev.timer.Stop()
		delete(s.inbound, key)
	}
}

// SendTyping signals the local user's typing state, over the socket when
// connected and through the API otherwise. A true signal is followed by an
// automatic false once TypingWindow passes without another call.
func (s *Session) SendTyping(ctx context.Context, roomID int64, isTyping bool) error {
	roomID, err := s.resolveRoom(roomID)
	if err != nil {
		return err
	}
	st := s.store.Pin()
	if isTyping {
		s.armOutbound(roomID)
	} else {
		s.disarmOutbound(roomID)
	}
	return s.track(st, "send_typing", s.signalTyping(ctx, roomID, isTyping))
}

func (s *Session) signalTyping(ctx context.Context, roomID int64, isTyping bool) error {
	frame := domain.NewFrame(domain.FrameTyping)
	frame.RoomID = roomID
	frame.IsTyping = &isTyping
	if s.sendFrame(frame) {
		return nil
	}
	return s.api.SendTyping(ctx, roomID, isTyping)
}

func (s *Session) armOutbound(roomID int64) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if prev, ok := s.outbound[roomID]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	t := s.after(TypingWindow, func() {
		s.timerMu.Lock()
		cur, ok := s.outbound[roomID]
		if !ok || cur.seq != seq {
			s.timerMu.Unlock()
			return
		}
		delete(s.outbound, roomID)
		s.timerMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), tapTimeout)
		defer cancel()
		if err := s.signalTyping(ctx, roomID, false); err != nil {
			s.logger.Debug("auto-stopping typing", slog.Int64("room_id", roomID), slog.Any("error", err))
		}
	})
	s.outbound[roomID] = expiry{timer: t, seq: seq}
}

// disarmOutbound reports whether a typing signal was active for the room.
func (s *Session) disarmOutbound(roomID int64) bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	prev, ok := s.outbound[roomID]
	if ok {
		prev.timer.Stop()
		delete(s.outbound, roomID)
	}
	return ok
}

func (s *Session) stopRoomTimers(roomID int64) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	for key, e := range s.inbound {
		if key.roomID == roomID {
			e.timer.Stop()
			delete(s.inbound, key)
		}
	}
	if e, ok := s.outbound[roomID]; ok {
		e.timer.Stop()
		delete(s.outbound, roomID)
	}
}

func (s *Session) stopAllTimers() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	for key, e := range s.inbound {
		e.timer.Stop()
		delete(s.inbound, key)
	}
	for roomID, e := range s.outbound {
		e.timer.Stop()
		delete(s.outbound, roomID)
	}
}
