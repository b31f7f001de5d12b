package dispatch

import (
	"encoding/json"

	"majlis-chat/internal/domain"
)

// Event is one decoded inbound frame.
type Event interface {
	Kind() string
}

type MessageEvent struct {
	Message domain.Message
}

type TypingEvent struct {
	Indicator domain.TypingIndicator
}

type MembershipEvent struct {
	Membership domain.Membership
	Joined     bool
}

type RoomUpdatedEvent struct {
	Room domain.Room
}

type UserStatusEvent struct {
	Status domain.UserStatus
}

// ControlEvent covers acknowledgements and server notices that carry no
// state change.
type ControlEvent struct {
	Type string
	// RequestID names the outbound frame a reply answers, when the server
	// echoes one.
	RequestID string
	Body      json.RawMessage
}

// Message is the text of an ERROR notice, empty when the body has none.
func (e ControlEvent) Message() string {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(e.Body, &body)
	return body.Message
}

func (MessageEvent) Kind() string     { return domain.EventMessage }
func (TypingEvent) Kind() string      { return domain.EventTyping }
func (RoomUpdatedEvent) Kind() string { return domain.EventRoomUpdated }
func (UserStatusEvent) Kind() string  { return domain.EventUserStatus }
func (e ControlEvent) Kind() string   { return e.Type }

func (e MembershipEvent) Kind() string {
	if e.Joined {
		return domain.EventUserJoined
	}
	return domain.EventUserLeft
}
