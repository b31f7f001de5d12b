package delivery

import (
	"errors"
	"strconv"
	"strings"

	"majlis-chat/internal/domain"

	"github.com/gofiber/fiber/v2"
)

const userKey = "user"

func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" || token == header {
		return failure(c, fiber.StatusUnauthorized, "authentication required")
	}
	user, ok := s.backend.Authenticate(token)
	if !ok {
		return failure(c, fiber.StatusUnauthorized, "authentication required")
	}
	c.Locals(userKey, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) domain.User {
	u, _ := c.Locals(userKey).(domain.User)
	return u
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// fail maps backend errors onto HTTP statuses, keeping the message verbatim.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, ErrRoomFull):
		status = fiber.StatusConflict
	case errors.Is(err, ErrInvalid):
		status = fiber.StatusBadRequest
	}
	return failure(c, status, err.Error())
}

// errorHandler renders errors returned from handlers in the JSON envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return failure(c, fe.Code, fe.Message)
	}
	return fail(c, err)
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (s *Server) handleCreateRoom(c *fiber.Ctx) error {
	var req domain.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid request body")
	}
	room, err := s.backend.CreateRoom(currentUser(c), req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(domain.APIResponse{Success: true, Message: "Room created", Room: &room})
}

func (s *Server) handleListRooms(c *fiber.Ctx) error {
	filter := domain.RoomFilter{
		Page:   c.QueryInt("page", 0),
		Size:   c.QueryInt("size", defaultPageSize),
		Type:   domain.RoomType(strings.ToUpper(c.Query("type"))),
		GameID: int64(c.QueryInt("gameId", 0)),
		Search: c.Query("search"),
	}
	rooms, total := s.backend.ListRooms(currentUser(c).ID, filter)
	return c.JSON(domain.APIResponse{
		Success:       true,
		Message:       "Rooms retrieved",
		Rooms:         rooms,
		TotalElements: total,
		TotalPages:    pages(total, filter.Size),
	})
}

func pages(total, size int) int {
	if size <= 0 {
		size = defaultPageSize
	}
	return (total + size - 1) / size
}

func (s *Server) handleJoinRoom(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	user := currentUser(c)
	room, err := s.backend.JoinRoom(user, roomID)
	if err != nil {
		return fail(c, err)
	}
	s.ws.BroadcastMembership(roomID, user, true)
	return c.JSON(domain.APIResponse{Success: true, Message: "Joined room", Room: &room})
}

func (s *Server) handleLeaveRoom(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	user := currentUser(c)
	if err := s.backend.LeaveRoom(user, roomID); err != nil {
		return fail(c, err)
	}
	s.ws.BroadcastMembership(roomID, user, false)
	return c.JSON(domain.APIResponse{Success: true, Message: "Left room"})
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	page := domain.MessagePage{
		Page:        c.QueryInt("page", 0),
		Size:        c.QueryInt("size", defaultPageSize),
		Before:      int64(c.QueryInt("before", 0)),
		After:       int64(c.QueryInt("after", 0)),
		MessageType: domain.MessageType(strings.ToUpper(c.Query("messageType"))),
		SenderID:    int64(c.QueryInt("senderId", 0)),
	}
	msgs, total, err := s.backend.Messages(currentUser(c).ID, roomID, page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(domain.APIResponse{
		Success:       true,
		Message:       "Messages retrieved",
		Messages:      msgs,
		TotalElements: total,
		TotalPages:    pages(total, page.Size),
	})
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req domain.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid request body")
	}
	msg, err := s.backend.PostMessage(currentUser(c), roomID, req)
	if err != nil {
		return fail(c, err)
	}
	s.ws.BroadcastMessage(msg)
	return c.Status(fiber.StatusCreated).JSON(domain.APIResponse{Success: true, Message: "Message sent", ChatMessage: &msg})
}

func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	messageID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := s.backend.DeleteMessage(currentUser(c), messageID); err != nil {
		return fail(c, err)
	}
	return c.JSON(domain.APIResponse{Success: true, Message: "Message deleted"})
}

func (s *Server) handleListMembers(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	members, err := s.backend.Members(roomID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(domain.APIResponse{Success: true, Message: "Members retrieved", Members: members})
}

func (s *Server) handleAddMember(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req domain.AddMemberRequest
	if err := c.BodyParser(&req); err != nil || req.UserID <= 0 {
		return failure(c, fiber.StatusBadRequest, "userId is required")
	}
	added, err := s.backend.AddMember(currentUser(c), roomID, req.UserID)
	if err != nil {
		return fail(c, err)
	}
	s.ws.BroadcastMembership(roomID, added, true)
	return c.JSON(domain.APIResponse{Success: true, Message: "Member added"})
}

func (s *Server) handleDirectMessage(c *fiber.Ctx) error {
	otherID, err := idParam(c, "userId")
	if err != nil {
		return err
	}
	room, err := s.backend.DirectRoom(currentUser(c), otherID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(domain.APIResponse{Success: true, Message: "Direct room ready", Room: &room})
}

func (s *Server) handleOnlineUsers(c *fiber.Ctx) error {
	return c.JSON(domain.APIResponse{Success: true, Message: "Online users retrieved", Users: s.ws.OnlineUsers()})
}

func (s *Server) handleTyping(c *fiber.Ctx) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req domain.TypingRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid request body")
	}
	user := currentUser(c)
	if !s.ws.isMember(roomID, user.ID) {
		return failure(c, fiber.StatusForbidden, "not a member of this room")
	}
	s.ws.BroadcastTyping(roomID, user, req.IsTyping)
	return c.JSON(domain.APIResponse{Success: true, Message: "Typing status sent"})
}
