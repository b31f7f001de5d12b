package store

import (
	"sort"

	"majlis-chat/internal/domain"
)

// ApplyNewMessage appends msg to its room. The room comes from the message
// itself, falling back to the current room; with neither the message is
// dropped. A confirmed message whose id is already present is ignored, and
// one that matches a pending placeholder of the same sender and content
// takes the placeholder's slot.
func (s *Store) ApplyNewMessage(msg domain.Message) bool {
	return s.update(func(next *domain.ChatState) bool {
		roomID, ok := msg.TargetRoom()
		if !ok {
			if next.CurrentRoom == nil {
				return false
			}
			roomID = next.CurrentRoom.ID
			msg = msg.InRoom(roomID)
		}

		list := next.Messages[roomID]
		var updated []domain.Message
		if msg.IsPending() {
			updated = appendMessage(list, msg)
		} else {
			if indexByID(list, msg.ID) >= 0 {
				return false
			}
			if i := indexPending(list, msg.Content, msg.SenderID(), true); i >= 0 {
				updated = replaceAt(list, i, msg)
			} else {
				updated = appendMessage(list, msg)
			}
		}

		next.Messages = cloneMessages(next.Messages)
		next.Messages[roomID] = updated
		if !msg.IsPending() {
			touchRoom(next, roomID, msg)
		}
		return true
	})
}

// ReconcileConfirmed swaps the pending placeholder for (roomID, content)
// with the server's copy, keeping its position. Without a placeholder the
// confirmed message is appended unless its id is already present.
func (s *Store) ReconcileConfirmed(roomID int64, content string, confirmed domain.Message) bool {
	confirmed.Delivery = domain.Confirmed
	if _, ok := confirmed.TargetRoom(); !ok {
		confirmed = confirmed.InRoom(roomID)
	}
	return s.update(func(next *domain.ChatState) bool {
		list := next.Messages[roomID]
		pending := indexPending(list, content, 0, false)
		existing := indexByID(list, confirmed.ID)

		var updated []domain.Message
		switch {
		case pending >= 0 && existing >= 0:
			updated = removeAt(list, pending)
		case pending >= 0:
			updated = replaceAt(list, pending, confirmed)
		case existing >= 0:
			return false
		default:
			updated = appendMessage(list, confirmed)
		}

		next.Messages = cloneMessages(next.Messages)
		next.Messages[roomID] = updated
		touchRoom(next, roomID, confirmed)
		return true
	})
}

// RemovePending rolls back the placeholder with localID.
func (s *Store) RemovePending(roomID, localID int64) bool {
	return s.update(func(next *domain.ChatState) bool {
		list := next.Messages[roomID]
		for i, m := range list {
			if m.IsPending() && m.ID == localID {
				next.Messages = cloneMessages(next.Messages)
				next.Messages[roomID] = removeAt(list, i)
				return true
			}
		}
		return false
	})
}

// PrependHistory inserts an older page in front of the room's messages,
// skipping ids already present.
func (s *Store) PrependHistory(roomID int64, page []domain.Message) bool {
	return s.update(func(next *domain.ChatState) bool {
		list := next.Messages[roomID]
		seen := make(map[int64]bool, len(list)+len(page))
		for _, m := range list {
			if !m.IsPending() {
				seen[m.ID] = true
			}
		}
		older := make([]domain.Message, 0, len(page))
		for _, m := range page {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			m.Delivery = domain.Confirmed
			if _, ok := m.TargetRoom(); !ok {
				m = m.InRoom(roomID)
			}
			older = append(older, m)
		}
		_, known := next.Messages[roomID]
		if len(older) == 0 && known {
			return false
		}
		sort.SliceStable(older, func(i, j int) bool {
			a, b := older[i], older[j]
			if !a.CreatedAt.Equal(b.CreatedAt.Time) {
				return a.CreatedAt.Before(b.CreatedAt.Time)
			}
			return a.ID < b.ID
		})
		merged := make([]domain.Message, 0, len(older)+len(list))
		merged = append(merged, older...)
		merged = append(merged, list...)
		next.Messages = cloneMessages(next.Messages)
		next.Messages[roomID] = merged
		return true
	})
}

// MarkDeleted applies a server-side soft delete.
func (s *Store) MarkDeleted(roomID, messageID int64) bool {
	return s.update(func(next *domain.ChatState) bool {
		list := next.Messages[roomID]
		i := indexByID(list, messageID)
		if i < 0 || list[i].IsDeleted {
			return false
		}
		m := list[i]
		m.IsDeleted = true
		next.Messages = cloneMessages(next.Messages)
		next.Messages[roomID] = replaceAt(list, i, m)
		return true
	})
}

func indexByID(list []domain.Message, id int64) int {
	for i, m := range list {
		if !m.IsPending() && m.ID == id {
			return i
		}
	}
	return -1
}

// indexPending finds the oldest placeholder with content, optionally
// requiring the same sender.
func indexPending(list []domain.Message, content string, senderID int64, matchSender bool) int {
	for i, m := range list {
		if !m.IsPending() || m.Content != content {
			continue
		}
		if matchSender && m.SenderID() != senderID {
			continue
		}
		return i
	}
	return -1
}

func appendMessage(list []domain.Message, msg domain.Message) []domain.Message {
	out := make([]domain.Message, len(list), len(list)+1)
	copy(out, list)
	return append(out, msg)
}

func replaceAt(list []domain.Message, i int, msg domain.Message) []domain.Message {
	out := make([]domain.Message, len(list))
	copy(out, list)
	out[i] = msg
	return out
}

func removeAt(list []domain.Message, i int) []domain.Message {
	out := make([]domain.Message, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

// touchRoom refreshes the denormalized last message of a known room.
func touchRoom(next *domain.ChatState, roomID int64, msg domain.Message) {
	for i, r := range next.Rooms {
		if r.ID != roomID {
			continue
		}
		last := msg
		last.Sender = copyUser(msg.Sender)
		r.LastMessage = &last
		if !msg.CreatedAt.IsZero() {
			ts := msg.CreatedAt
			r.LastActivity = &ts
		}
		rooms := make([]domain.Room, len(next.Rooms))
		copy(rooms, next.Rooms)
		rooms[i] = r
		next.Rooms = rooms
		if next.CurrentRoom != nil && next.CurrentRoom.ID == roomID {
			cur := r
			next.CurrentRoom = &cur
		}
		return
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
