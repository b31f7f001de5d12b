package chat

import (
	"context"
	"fmt"
	"log/slog"

	"majlis-chat/internal/domain"
	"majlis-chat/internal/store"
)

// ListRooms replaces the room list with the server's.
func (s *Session) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	return s.listRooms(ctx, s.store.Pin(), filter)
}

func (s *Session) listRooms(ctx context.Context, st *store.Store, filter domain.RoomFilter) ([]domain.Room, error) {
	st.SetLoading(true)
	defer st.SetLoading(false)

	rooms, err := s.api.ListRooms(ctx, filter)
	if err := s.track(st, "list_rooms", err); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	st.SetRooms(rooms)
	return rooms, nil
}

// SearchRooms returns matching rooms without touching the joined list.
func (s *Session) SearchRooms(ctx context.Context, query string) ([]domain.Room, error) {
	st := s.store.Pin()
	rooms, err := s.api.ListRooms(ctx, domain.RoomFilter{Search: query})
	if err := s.track(st, "search_rooms", err); err != nil {
		return nil, fmt.Errorf("search rooms: %w", err)
	}
	return rooms, nil
}

func (s *Session) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	st := s.store.Pin()
	room, err := s.api.CreateRoom(ctx, req)
	if err := s.track(st, "create_room", err); err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	st.UpsertRoom(room)

	frame := domain.NewFrame(domain.FrameRoomCreate)
	frame.RoomID = room.ID
	frame.Payload = room
	s.sendFrame(frame)
	return room, nil
}

// JoinRoom succeeds once the server accepted the join. The room list
// refresh and first history page that follow are best-effort, and are
// skipped when the session is torn down meanwhile.
func (s *Session) JoinRoom(ctx context.Context, roomID int64) (domain.Room, error) {
	st := s.store.Pin()
	room, err := s.api.JoinRoom(ctx, roomID)
	if err := s.track(st, "join_room", err); err != nil {
		return domain.Room{}, fmt.Errorf("join room %d: %w", roomID, err)
	}
	if st.Stale() {
		return room, nil
	}
	st.UpsertRoom(room)
	s.sendFrame(joinFrame(roomID))

	if _, err := s.listRooms(ctx, st, domain.RoomFilter{}); err != nil {
		s.logger.Warn("refreshing rooms after join", slog.Int64("room_id", roomID), slog.Any("error", err))
	}
	if _, err := s.getMessages(ctx, st, roomID, domain.MessagePage{Size: initialHistoryPage}); err != nil {
		s.logger.Warn("loading history after join", slog.Int64("room_id", roomID), slog.Any("error", err))
	}
	if r, ok := st.Snapshot().Room(roomID); ok && !st.Stale() {
		return r, nil
	}
	return room, nil
}

func (s *Session) LeaveRoom(ctx context.Context, roomID int64) error {
	st := s.store.Pin()
	err := s.api.LeaveRoom(ctx, roomID)
	if err := s.track(st, "leave_room", err); err != nil {
		return fmt.Errorf("leave room %d: %w", roomID, err)
	}
	s.stopRoomTimers(roomID)
	st.RemoveRoom(roomID)
	return nil
}

// SelectRoom makes a joined room current; zero clears the selection.
func (s *Session) SelectRoom(roomID int64) error {
	if roomID == 0 {
		s.store.SelectRoom(0)
		return nil
	}
	if _, ok := s.store.Snapshot().Room(roomID); !ok {
		return fmt.Errorf("select room %d: %w", roomID, ErrUnknownRoom)
	}
	s.store.SelectRoom(roomID)
	return nil
}

func (s *Session) ListMembers(ctx context.Context, roomID int64) ([]domain.User, error) {
	st := s.store.Pin()
	members, err := s.api.ListMembers(ctx, roomID)
	if err := s.track(st, "list_members", err); err != nil {
		return nil, fmt.Errorf("list members of room %d: %w", roomID, err)
	}
	return members, nil
}

func (s *Session) AddMember(ctx context.Context, roomID, userID int64) error {
	st := s.store.Pin()
	err := s.api.AddMember(ctx, roomID, userID)
	if err := s.track(st, "add_member", err); err != nil {
		return fmt.Errorf("add member %d to room %d: %w", userID, roomID, err)
	}
	st.ApplyMembership(roomID, true)
	return nil
}

// StartDirectMessage opens (or reuses) the direct room with userID and
// selects it.
func (s *Session) StartDirectMessage(ctx context.Context, userID int64) (domain.Room, error) {
	st := s.store.Pin()
	room, err := s.api.StartDirectMessage(ctx, userID)
	if err := s.track(st, "start_direct_message", err); err != nil {
		return domain.Room{}, fmt.Errorf("start direct message with %d: %w", userID, err)
	}
	if st.Stale() {
		return room, nil
	}
	st.UpsertRoom(room)
	st.SelectRoom(room.ID)
	s.sendFrame(joinFrame(room.ID))
	return room, nil
}

func (s *Session) GetOnlineUsers(ctx context.Context) ([]domain.User, error) {
	st := s.store.Pin()
	users, err := s.api.OnlineUsers(ctx)
	if err := s.track(st, "online_users", err); err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}
	st.SetOnlineUsers(users)
	return users, nil
}

// resolveRoom maps zero to the current room.
func (s *Session) resolveRoom(roomID int64) (int64, error) {
	if roomID != 0 {
		return roomID, nil
	}
	room := s.store.CurrentRoom()
	if room == nil {
		return 0, domain.ErrNoRoomSelected
	}
	return room.ID, nil
}
