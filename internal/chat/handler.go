package chat

import (
	"log/slog"

	"majlis-chat/internal/dispatch"
	"majlis-chat/internal/domain"
)

// The Session is the dispatcher's handler: pushed events go through the
// same store operations as REST results.

func (s *Session) HandleMessage(msg domain.Message) {
	s.store.ApplyNewMessage(msg)
}

func (s *Session) HandleTyping(ind domain.TypingIndicator) {
	if _, self := s.credentials(); ind.User.ID == self {
		return
	}
	s.store.ApplyTyping(ind)
	key := typingKey{roomID: ind.RoomID, userID: ind.User.ID}
	if ind.IsTyping {
		user := ind.User
		s.armInbound(key, func() {
			s.store.ApplyTyping(domain.TypingIndicator{RoomID: key.roomID, User: user, IsTyping: false, Timestamp: domain.Now()})
		})
		return
	}
	s.disarmInbound(key)
}

func (s *Session) HandleMembership(m domain.Membership, joined bool) {
	s.store.ApplyMembership(m.RoomID, joined)
	if !joined && m.User.ID != 0 {
		s.store.ApplyTyping(domain.TypingIndicator{RoomID: m.RoomID, User: m.User, IsTyping: false, Timestamp: domain.Now()})
		s.disarmInbound(typingKey{roomID: m.RoomID, userID: m.User.ID})
	}
}

// watchControl fails the connection when the server refuses the identify
// frame and records why.
func (s *Session) watchControl(ev dispatch.Event) {
	ctl, ok := ev.(dispatch.ControlEvent)
	if !ok || ctl.Type != eventError {
		return
	}
	if !s.ctrl.RejectIdentity(ctl.RequestID) {
		s.logger.Debug("server error notice", slog.String("request_id", ctl.RequestID), slog.String("message", ctl.Message()))
		return
	}
	reason := ctl.Message()
	if reason == "" {
		reason = "identify rejected"
	}
	s.store.SetError("identify", reason)
}

func (s *Session) HandleRoomUpdated(room domain.Room) {
	s.store.ApplyRoomUpdate(room)
}

func (s *Session) HandleUserStatus(st domain.UserStatus) {
	s.store.ApplyUserStatus(st.UserID, st.Status, st.CurrentGame)
}
