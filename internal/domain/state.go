package domain

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ChatState is the aggregate view of one session. Values handed out by the
// store are snapshots: callers must not mutate the slices or maps in place.
type ChatState struct {
	Rooms       []Room              `json:"rooms"`
	Messages    map[int64][]Message `json:"messages"`
	TypingUsers map[int64][]User    `json:"typingUsers"`
	OnlineUsers []User              `json:"onlineUsers"`
	IsLoading   bool                `json:"isLoading"`
	Error       string              `json:"error,omitempty"`
	ErrorOp     string              `json:"errorOp,omitempty"`
	CurrentRoom *Room               `json:"currentRoom,omitempty"`
}

func EmptyState() ChatState {
	return ChatState{
		Rooms:       []Room{},
		Messages:    map[int64][]Message{},
		TypingUsers: map[int64][]User{},
		OnlineUsers: []User{},
	}
}

func (s ChatState) Room(id int64) (Room, bool) {
	for _, r := range s.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}
