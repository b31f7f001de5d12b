package domain

import (
	"encoding/json"
	"time"
)

// Outbound socket frame types.
const (
	FrameIdentify   = "identify"
	FrameMessage    = "MESSAGE"
	FrameTyping     = "TYPING"
	FrameJoinRoom   = "join_room"
	FrameRoomCreate = "room_create"
)

// Inbound event discriminators, compared case-insensitively.
const (
	EventMessage     = "MESSAGE"
	EventTyping      = "TYPING"
	EventUserJoined  = "USER_JOINED"
	EventUserLeft    = "USER_LEFT"
	EventRoomUpdated = "ROOM_UPDATED"
	EventUserStatus  = "USER_STATUS"
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	RoomID    int64       `json:"roomId,omitempty"`
	IsTyping  *bool       `json:"isTyping,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func NewFrame(frameType string) WebSocketMessage {
	return WebSocketMessage{
		Type:      frameType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

type IdentifyPayload struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
}

// InboundEnvelope lists every key a server has been seen to wrap an event
// body in.
type InboundEnvelope struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"requestId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	ChatMessage json.RawMessage `json:"chatMessage,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
}

type RoomFilter struct {
	Page   int
	Size   int
	Type   RoomType
	GameID int64
	Search string
}

type MessagePage struct {
	Page        int
	Size        int
	Before      int64
	After       int64
	MessageType MessageType
	SenderID    int64
}

type CreateRoomRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        RoomType `json:"type"`
	MaxMembers  int      `json:"maxMembers,omitempty"`
	IsPrivate   bool     `json:"isPrivate"`
	GameID      int64    `json:"gameId,omitempty"`
}

type SendMessageRequest struct {
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	ReplyToID   int64       `json:"replyToId,omitempty"`
	FileURL     string      `json:"fileUrl,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type AddMemberRequest struct {
	UserID int64 `json:"userId"`
}

// APIResponse is the success envelope shared by all REST endpoints.
type APIResponse struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	Room          *Room     `json:"room,omitempty"`
	Rooms         []Room    `json:"rooms,omitempty"`
	ChatMessage   *Message  `json:"chatMessage,omitempty"`
	Messages      []Message `json:"messages,omitempty"`
	Users         []User    `json:"users,omitempty"`
	Members       []User    `json:"members,omitempty"`
	TotalElements int       `json:"totalElements,omitempty"`
	TotalPages    int       `json:"totalPages,omitempty"`
}
