package domain

type RoomType string

const (
	RoomTypeGroup  RoomType = "GROUP"
	RoomTypeDirect RoomType = "DIRECT"
)

type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeVideo  MessageType = "VIDEO"
	MessageTypeAudio  MessageType = "AUDIO"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// Delivery tells a locally synthesized placeholder apart from a message the
// server has acknowledged. The zero value is Confirmed so everything decoded
// from the wire is confirmed.
type Delivery int

const (
	Confirmed Delivery = iota
	Pending
)

func (d Delivery) String() string {
	if d == Pending {
		return "pending"
	}
	return "confirmed"
}

type User struct {
	ID                int64  `json:"id"`
	Username          string `json:"username,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
	Status            string `json:"status,omitempty"`
	CurrentGame       string `json:"currentGame,omitempty"`
}

type RoomRef struct {
	ID int64 `json:"id"`
}

type MessageRef struct {
	ID int64 `json:"id"`
}

type Room struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Type           RoomType   `json:"type"`
	MaxMembers     int        `json:"maxMembers,omitempty"`
	CurrentMembers int        `json:"currentMembers"`
	IsPrivate      bool       `json:"isPrivate"`
	GameID         int64      `json:"gameId,omitempty"`
	CreatedAt      Timestamp  `json:"createdAt"`
	LastActivity   *Timestamp `json:"lastActivity,omitempty"`
	LastMessage    *Message   `json:"lastMessage,omitempty"`
}

type Message struct {
	ID          int64       `json:"id"`
	Room        *RoomRef    `json:"room,omitempty"`
	RoomID      int64       `json:"roomId,omitempty"`
	ChatRoomID  int64       `json:"chatRoomId,omitempty"`
	Sender      *User       `json:"sender,omitempty"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType,omitempty"`
	ReplyTo     *MessageRef `json:"replyTo,omitempty"`
	FileURL     string      `json:"fileUrl,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
	CreatedAt   Timestamp   `json:"createdAt"`
	EditedAt    *Timestamp  `json:"editedAt,omitempty"`
	IsEdited    bool        `json:"isEdited,omitempty"`
	IsDeleted   bool        `json:"isDeleted,omitempty"`
	Delivery    Delivery    `json:"-"`
}

// TargetRoom resolves the room a message belongs to from whichever room field
// the server populated.
func (m Message) TargetRoom() (int64, bool) {
	switch {
	case m.Room != nil && m.Room.ID != 0:
		return m.Room.ID, true
	case m.RoomID != 0:
		return m.RoomID, true
	case m.ChatRoomID != 0:
		return m.ChatRoomID, true
	}
	return 0, false
}

// InRoom returns a copy of m addressed to roomID.
func (m Message) InRoom(roomID int64) Message {
	m.Room = &RoomRef{ID: roomID}
	return m
}

func (m Message) IsPending() bool {
	return m.Delivery == Pending
}

func (m Message) SenderID() int64 {
	if m.Sender == nil {
		return 0
	}
	return m.Sender.ID
}

type TypingIndicator struct {
	RoomID    int64     `json:"roomId"`
	User      User      `json:"user"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp Timestamp `json:"timestamp"`
}

type UserStatus struct {
	UserID      int64  `json:"userId"`
	Status      string `json:"status"`
	CurrentGame string `json:"currentGame,omitempty"`
}

type Membership struct {
	RoomID int64 `json:"roomId"`
	User   User  `json:"user"`
}
