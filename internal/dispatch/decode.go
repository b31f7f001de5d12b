package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"majlis-chat/internal/domain"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnrecognized = errors.New("unrecognized event")
)

var controlTypes = map[string]bool{
	"IDENTIFIED":             true,
	"CONNECTION_ESTABLISHED": true,
	"PONG":                   true,
	"ERROR":                  true,
	"ACK":                    true,
}

// Decode classifies a raw frame. It tries, in order, a typed envelope, a
// bare message object and a control notice.
func Decode(frame []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var env domain.InboundEnvelope
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &env.Type); err != nil {
			env.Type = ""
		}
	}
	kind := strings.ToUpper(strings.TrimSpace(env.Type))

	if kind != "" && isDomainType(kind) {
		_ = json.Unmarshal(frame, &env)
		return decodeBody(kind, envelopeBody(env, frame))
	}
	if isBareMessage(fields) {
		return decodeBody(domain.EventMessage, frame)
	}
	if controlTypes[kind] {
		_ = json.Unmarshal(frame, &env)
		return ControlEvent{Type: kind, RequestID: env.RequestID, Body: envelopeBody(env, frame)}, nil
	}
	if kind == "" {
		return nil, fmt.Errorf("%w: no type discriminator", ErrUnrecognized)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnrecognized, env.Type)
}

func isDomainType(kind string) bool {
	switch kind {
	case domain.EventMessage, domain.EventTyping, domain.EventUserJoined,
		domain.EventUserLeft, domain.EventRoomUpdated, domain.EventUserStatus:
		return true
	}
	return false
}

func isBareMessage(fields map[string]json.RawMessage) bool {
	for _, k := range []string{"id", "content", "sender"} {
		if _, ok := fields[k]; !ok {
			return false
		}
	}
	return true
}

// envelopeBody picks the first wrapped object; flat envelopes carry their
// fields next to type.
func envelopeBody(env domain.InboundEnvelope, frame []byte) json.RawMessage {
	for _, raw := range []json.RawMessage{env.Payload, env.Data, env.ChatMessage, env.Message} {
		if isObject(raw) {
			return raw
		}
	}
	return frame
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeBody(kind string, body json.RawMessage) (Event, error) {
	switch kind {
	case domain.EventMessage:
		return decodeMessage(body)
	case domain.EventTyping:
		return decodeTyping(body)
	case domain.EventUserJoined, domain.EventUserLeft:
		return decodeMembership(body, kind == domain.EventUserJoined)
	case domain.EventRoomUpdated:
		return decodeRoom(body)
	case domain.EventUserStatus:
		return decodeUserStatus(body)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnrecognized, kind)
}

func decodeMessage(body json.RawMessage) (Event, error) {
	var msg domain.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("%w: message without server id", ErrMalformed)
	}
	msg.Delivery = domain.Confirmed
	return MessageEvent{Message: msg}, nil
}

// userWire accepts either a nested user object or flat userId/username
// fields.
type userWire struct {
	RoomID      int64        `json:"roomId"`
	ChatRoomID  int64        `json:"chatRoomId"`
	UserID      int64        `json:"userId"`
	Username    string       `json:"username"`
	DisplayName string       `json:"displayName"`
	User        *domain.User `json:"user"`
}

func (w userWire) room() int64 {
	if w.RoomID != 0 {
		return w.RoomID
	}
	return w.ChatRoomID
}

func (w userWire) user() domain.User {
	if w.User != nil && w.User.ID != 0 {
		return *w.User
	}
	return domain.User{ID: w.UserID, Username: w.Username, DisplayName: w.DisplayName}
}

func decodeTyping(body json.RawMessage) (Event, error) {
	var w struct {
		userWire
		IsTyping  bool             `json:"isTyping"`
		Timestamp domain.Timestamp `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: typing: %v", ErrMalformed, err)
	}
	u := w.user()
	if w.room() == 0 || u.ID == 0 {
		return nil, fmt.Errorf("%w: typing without room or user", ErrMalformed)
	}
	ts := w.Timestamp
	if ts.IsZero() {
		ts = domain.Now()
	}
	return TypingEvent{Indicator: domain.TypingIndicator{
		RoomID:    w.room(),
		User:      u,
		IsTyping:  w.IsTyping,
		Timestamp: ts,
	}}, nil
}

func decodeMembership(body json.RawMessage, joined bool) (Event, error) {
	var w userWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: membership: %v", ErrMalformed, err)
	}
	u := w.user()
	if w.room() == 0 || u.ID == 0 {
		return nil, fmt.Errorf("%w: membership without room or user", ErrMalformed)
	}
	return MembershipEvent{Membership: domain.Membership{RoomID: w.room(), User: u}, Joined: joined}, nil
}

func decodeRoom(body json.RawMessage) (Event, error) {
	var wrapped struct {
		Room *domain.Room `json:"room"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Room != nil && wrapped.Room.ID != 0 {
		return RoomUpdatedEvent{Room: *wrapped.Room}, nil
	}
	var room domain.Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("%w: room: %v", ErrMalformed, err)
	}
	if room.ID == 0 {
		return nil, fmt.Errorf("%w: room without id", ErrMalformed)
	}
	return RoomUpdatedEvent{Room: room}, nil
}

func decodeUserStatus(body json.RawMessage) (Event, error) {
	var w struct {
		userWire
		Status      string `json:"status"`
		CurrentGame string `json:"currentGame"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: user status: %v", ErrMalformed, err)
	}
	st := domain.UserStatus{UserID: w.UserID, Status: w.Status, CurrentGame: w.CurrentGame}
	if w.User != nil {
		if st.UserID == 0 {
			st.UserID = w.User.ID
		}
		if st.Status == "" {
			st.Status = w.User.Status
		}
		if st.CurrentGame == "" {
			st.CurrentGame = w.User.CurrentGame
		}
	}
	if st.UserID == 0 {
		return nil, fmt.Errorf("%w: user status without user", ErrMalformed)
	}
	return UserStatusEvent{Status: st}, nil
}
