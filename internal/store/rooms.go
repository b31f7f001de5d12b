package store

import "majlis-chat/internal/domain"

// ApplyTyping folds one indicator into the room's typing set. Repeating an
// identical event changes nothing.
func (s *Store) ApplyTyping(ind domain.TypingIndicator) bool {
	return s.update(func(next *domain.ChatState) bool {
		users := next.TypingUsers[ind.RoomID]
		idx := -1
		for i, u := range users {
			if u.ID == ind.User.ID {
				idx = i
				break
			}
		}

		var updated []domain.User
		switch {
		case ind.IsTyping && idx >= 0:
			return false
		case ind.IsTyping:
			updated = make([]domain.User, len(users), len(users)+1)
			copy(updated, users)
			updated = append(updated, ind.User)
		case idx < 0:
			return false
		default:
			updated = make([]domain.User, 0, len(users)-1)
			updated = append(updated, users[:idx]...)
			updated = append(updated, users[idx+1:]...)
		}

		next.TypingUsers = cloneTyping(next.TypingUsers)
		if len(updated) == 0 {
			delete(next.TypingUsers, ind.RoomID)
		} else {
			next.TypingUsers[ind.RoomID] = updated
		}
		return true
	})
}

// ApplyRoomUpdate replaces a known room by id. Unknown rooms are not
// inserted; that only happens through create or join.
func (s *Store) ApplyRoomUpdate(room domain.Room) bool {
	return s.update(func(next *domain.ChatState) bool {
		for i, r := range next.Rooms {
			if r.ID != room.ID {
				continue
			}
			if room.LastMessage == nil {
				room.LastMessage = r.LastMessage
			}
			next.Rooms = replaceRoom(next.Rooms, i, room)
			if next.CurrentRoom != nil && next.CurrentRoom.ID == room.ID {
				cur := room
				next.CurrentRoom = &cur
			}
			return true
		}
		return false
	})
}

// ApplyMembership adjusts a known room's member count for USER_JOINED and
// USER_LEFT events.
func (s *Store) ApplyMembership(roomID int64, joined bool) bool {
	return s.update(func(next *domain.ChatState) bool {
		for i, r := range next.Rooms {
			if r.ID != roomID {
				continue
			}
			if joined {
				r.CurrentMembers++
			} else if r.CurrentMembers > 0 {
				r.CurrentMembers--
			} else {
				return false
			}
			next.Rooms = replaceRoom(next.Rooms, i, r)
			if next.CurrentRoom != nil && next.CurrentRoom.ID == roomID {
				cur := r
				next.CurrentRoom = &cur
			}
			return true
		}
		return false
	})
}

// ApplyUserStatus updates an online user's presence; users that are not in
// the online list are ignored.
func (s *Store) ApplyUserStatus(userID int64, status, currentGame string) bool {
	return s.update(func(next *domain.ChatState) bool {
		for i, u := range next.OnlineUsers {
			if u.ID != userID {
				continue
			}
			if u.Status == status && u.CurrentGame == currentGame {
				return false
			}
			u.Status = status
			u.CurrentGame = currentGame
			users := make([]domain.User, len(next.OnlineUsers))
			copy(users, next.OnlineUsers)
			users[i] = u
			next.OnlineUsers = users
			return true
		}
		return false
	})
}

func (s *Store) SetRooms(rooms []domain.Room) {
	s.update(func(next *domain.ChatState) bool {
		next.Rooms = append([]domain.Room{}, rooms...)
		if next.CurrentRoom != nil {
			if r, ok := next.Room(next.CurrentRoom.ID); ok {
				next.CurrentRoom = &r
			}
		}
		return true
	})
}

// UpsertRoom records a room the server confirmed through create or join.
func (s *Store) UpsertRoom(room domain.Room) {
	s.update(func(next *domain.ChatState) bool {
		for i, r := range next.Rooms {
			if r.ID == room.ID {
				next.Rooms = replaceRoom(next.Rooms, i, room)
				return true
			}
		}
		rooms := make([]domain.Room, len(next.Rooms), len(next.Rooms)+1)
		copy(rooms, next.Rooms)
		next.Rooms = append(rooms, room)
		return true
	})
}

// RemoveRoom forgets a room after an explicit leave, with its messages and
// typing set.
func (s *Store) RemoveRoom(roomID int64) bool {
	return s.update(func(next *domain.ChatState) bool {
		idx := -1
		for i, r := range next.Rooms {
			if r.ID == roomID {
				idx = i
				break
			}
		}
		_, hasMessages := next.Messages[roomID]
		if idx < 0 && !hasMessages {
			return false
		}
		if idx >= 0 {
			rooms := make([]domain.Room, 0, len(next.Rooms)-1)
			rooms = append(rooms, next.Rooms[:idx]...)
			next.Rooms = append(rooms, next.Rooms[idx+1:]...)
		}
		next.Messages = cloneMessages(next.Messages)
		delete(next.Messages, roomID)
		next.TypingUsers = cloneTyping(next.TypingUsers)
		delete(next.TypingUsers, roomID)
		if next.CurrentRoom != nil && next.CurrentRoom.ID == roomID {
			next.CurrentRoom = nil
		}
		return true
	})
}

// SelectRoom makes a known room current. Zero clears the selection.
func (s *Store) SelectRoom(roomID int64) bool {
	return s.update(func(next *domain.ChatState) bool {
		if roomID == 0 {
			if next.CurrentRoom == nil {
				return false
			}
			next.CurrentRoom = nil
			return true
		}
		r, ok := next.Room(roomID)
		if !ok {
			return false
		}
		next.CurrentRoom = &r
		return true
	})
}

func (s *Store) SetOnlineUsers(users []domain.User) {
	s.update(func(next *domain.ChatState) bool {
		next.OnlineUsers = append([]domain.User{}, users...)
		return true
	})
}

func (s *Store) SetLoading(loading bool) {
	s.update(func(next *domain.ChatState) bool {
		if next.IsLoading == loading {
			return false
		}
		next.IsLoading = loading
		return true
	})
}

// SetError records the latest failure of operation op for display.
func (s *Store) SetError(op, message string) {
	s.update(func(next *domain.ChatState) bool {
		next.Error = message
		next.ErrorOp = op
		return true
	})
}

// ClearError drops the recorded error if it came from the same operation.
func (s *Store) ClearError(op string) {
	s.update(func(next *domain.ChatState) bool {
		if next.Error == "" || next.ErrorOp != op {
			return false
		}
		next.Error = ""
		next.ErrorOp = ""
		return true
	})
}

func replaceRoom(rooms []domain.Room, i int, room domain.Room) []domain.Room {
	out := make([]domain.Room, len(rooms))
	copy(out, rooms)
	out[i] = room
	return out
}
