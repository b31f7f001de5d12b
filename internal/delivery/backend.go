package delivery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"majlis-chat/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrRoomFull  = errors.New("room is full")
	ErrInvalid   = errors.New("invalid request")
)

const defaultPageSize = 20

type roomRecord struct {
	room    domain.Room
	members []int64
}

func (r *roomRecord) isMember(userID int64) bool {
	for _, id := range r.members {
		if id == userID {
			return true
		}
	}
	return false
}

// Backend is the in-memory chat service behind the stub server.
type Backend struct {
	mu       sync.Mutex
	tokens   map[string]domain.User
	users    map[int64]domain.User
	rooms    map[int64]*roomRecord
	messages map[int64][]domain.Message
	lastRoom int64
	lastMsg  int64
}

func NewBackend() *Backend {
	return &Backend{
		tokens:   make(map[string]domain.User),
		users:    make(map[int64]domain.User),
		rooms:    make(map[int64]*roomRecord),
		messages: make(map[int64][]domain.Message),
	}
}

func (b *Backend) RegisterUser(token string, user domain.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = user
	b.users[user.ID] = user
}

func (b *Backend) Authenticate(token string) (domain.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.tokens[token]
	return u, ok
}

func (b *Backend) User(id int64) (domain.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	return u, ok
}

func (b *Backend) CreateRoom(owner domain.User, req domain.CreateRoomRequest) (domain.Room, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.Room{}, fmt.Errorf("%w: room name is required", ErrInvalid)
	}
	if req.Type == "" {
		req.Type = domain.RoomTypeGroup
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRoom++
	room := domain.Room{
		ID:             b.lastRoom,
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		MaxMembers:     req.MaxMembers,
		CurrentMembers: 1,
		IsPrivate:      req.IsPrivate,
		GameID:         req.GameID,
		CreatedAt:      domain.Now(),
	}
	b.rooms[room.ID] = &roomRecord{room: room, members: []int64{owner.ID}}
	return room, nil
}

// ListRooms returns the rooms visible to userID, oldest first: every room
// it belongs to plus every public one.
func (b *Backend) ListRooms(userID int64, f domain.RoomFilter) ([]domain.Room, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	search := strings.ToLower(f.Search)
	var out []domain.Room
	for _, rec := range b.rooms {
		r := rec.room
		if r.IsPrivate && !rec.isMember(userID) {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.GameID != 0 && r.GameID != f.GameID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Name), search) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	return paginate(out, f.Page, f.Size), total
}

func paginate[T any](list []T, page, size int) []T {
	if size <= 0 {
		size = defaultPageSize
	}
	start := page * size
	if page < 0 || start >= len(list) {
		return []T{}
	}
	end := start + size
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}

func (b *Backend) JoinRoom(user domain.User, roomID int64) (domain.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	if rec.isMember(user.ID) {
		return rec.room, nil
	}
	if rec.room.IsPrivate {
		return domain.Room{}, fmt.Errorf("room %d is private: %w", roomID, ErrForbidden)
	}
	if rec.room.MaxMembers > 0 && rec.room.CurrentMembers >= rec.room.MaxMembers {
		return domain.Room{}, ErrRoomFull
	}
	rec.members = append(rec.members, user.ID)
	rec.room.CurrentMembers = len(rec.members)
	return rec.room, nil
}

func (b *Backend) LeaveRoom(user domain.User, roomID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	for i, id := range rec.members {
		if id == user.ID {
			rec.members = append(rec.members[:i:i], rec.members[i+1:]...)
			rec.room.CurrentMembers = len(rec.members)
			return nil
		}
	}
	return fmt.Errorf("%w: not a member of room %d", ErrInvalid, roomID)
}

// Messages pages backwards from the newest message: page 0 holds the
// latest size messages. Each page is returned oldest first.
func (b *Backend) Messages(userID, roomID int64, p domain.MessagePage) ([]domain.Message, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return nil, 0, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	if !rec.isMember(userID) {
		return nil, 0, fmt.Errorf("room %d: %w", roomID, ErrForbidden)
	}

	var matched []domain.Message
	for _, m := range b.messages[roomID] {
		switch {
		case p.Before != 0 && m.ID >= p.Before:
			continue
		case p.After != 0 && m.ID <= p.After:
			continue
		case p.MessageType != "" && m.MessageType != p.MessageType:
			continue
		case p.SenderID != 0 && m.SenderID() != p.SenderID:
			continue
		}
		matched = append(matched, m)
	}

	size := p.Size
	if size <= 0 {
		size = defaultPageSize
	}
	end := len(matched) - p.Page*size
	if p.Page < 0 || end <= 0 {
		return []domain.Message{}, len(matched), nil
	}
	start := end - size
	if start < 0 {
		start = 0
	}
	return append([]domain.Message(nil), matched[start:end]...), len(matched), nil
}

func (b *Backend) PostMessage(sender domain.User, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	if strings.TrimSpace(req.Content) == "" && req.FileURL == "" {
		return domain.Message{}, fmt.Errorf("%w: message content is required", ErrInvalid)
	}
	if req.MessageType == "" {
		req.MessageType = domain.MessageTypeText
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return domain.Message{}, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	if !rec.isMember(sender.ID) {
		return domain.Message{}, fmt.Errorf("room %d: %w", roomID, ErrForbidden)
	}

	b.lastMsg++
	u := sender
	msg := domain.Message{
		ID:          b.lastMsg,
		Room:        &domain.RoomRef{ID: roomID},
		Sender:      &u,
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		CreatedAt:   domain.Now(),
	}
	if req.ReplyToID != 0 {
		msg.ReplyTo = &domain.MessageRef{ID: req.ReplyToID}
	}
	b.messages[roomID] = append(b.messages[roomID], msg)

	last := msg
	rec.room.LastMessage = &last
	at := msg.CreatedAt
	rec.room.LastActivity = &at
	return msg, nil
}

// DeleteMessage soft-deletes a message of the caller and reports its room.
func (b *Backend) DeleteMessage(user domain.User, messageID int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for roomID, list := range b.messages {
		for i, m := range list {
			if m.ID != messageID {
				continue
			}
			if m.SenderID() != user.ID {
				return 0, fmt.Errorf("message %d: %w", messageID, ErrForbidden)
			}
			list[i].IsDeleted = true
			list[i].Content = ""
			return roomID, nil
		}
	}
	return 0, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
}

func (b *Backend) Members(roomID int64) ([]domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	out := make([]domain.User, 0, len(rec.members))
	for _, id := range rec.members {
		if u, ok := b.users[id]; ok {
			out = append(out, u)
		} else {
			out = append(out, domain.User{ID: id})
		}
	}
	return out, nil
}

// MemberIDs is used for fan-out and never fails; unknown rooms have none.
func (b *Backend) MemberIDs(roomID int64) []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]int64(nil), rec.members...)
}

func (b *Backend) AddMember(actor domain.User, roomID, userID int64) (domain.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.rooms[roomID]
	if !ok {
		return domain.User{}, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	if !rec.isMember(actor.ID) {
		return domain.User{}, fmt.Errorf("room %d: %w", roomID, ErrForbidden)
	}
	u, ok := b.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if rec.isMember(userID) {
		return u, nil
	}
	if rec.room.MaxMembers > 0 && len(rec.members) >= rec.room.MaxMembers {
		return domain.User{}, ErrRoomFull
	}
	rec.members = append(rec.members, userID)
	rec.room.CurrentMembers = len(rec.members)
	return u, nil
}

// DirectRoom returns the private two-member room of a and b, creating it
// on first use.
func (b *Backend) DirectRoom(a domain.User, otherID int64) (domain.Room, error) {
	if a.ID == otherID {
		return domain.Room{}, fmt.Errorf("%w: cannot message yourself", ErrInvalid)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	other, ok := b.users[otherID]
	if !ok {
		return domain.Room{}, fmt.Errorf("user %d: %w", otherID, ErrNotFound)
	}
	for _, rec := range b.rooms {
		if rec.room.Type == domain.RoomTypeDirect && len(rec.members) == 2 && rec.isMember(a.ID) && rec.isMember(otherID) {
			return rec.room, nil
		}
	}
	b.lastRoom++
	room := domain.Room{
		ID:             b.lastRoom,
		Name:           directName(a, other),
		Type:           domain.RoomTypeDirect,
		MaxMembers:     2,
		CurrentMembers: 2,
		IsPrivate:      true,
		CreatedAt:      domain.Now(),
	}
	b.rooms[room.ID] = &roomRecord{room: room, members: []int64{a.ID, otherID}}
	return room, nil
}

func directName(a, b domain.User) string {
	name := func(u domain.User) string {
		if u.Username != "" {
			return u.Username
		}
		return fmt.Sprintf("user-%d", u.ID)
	}
	return name(a) + " & " + name(b)
}
