package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"majlis-chat/internal/domain"

	"github.com/gofiber/websocket/v2"
)

const (
	eventIdentified  = "IDENTIFIED"
	eventEstablished = "CONNECTION_ESTABLISHED"
	eventAck         = "ACK"
	eventPong        = "PONG"
	eventError       = "ERROR"
)

var errConnectionClosed = errors.New("connection closed")

type WSConnection struct {
	Conn     *websocket.Conn
	User     domain.User
	writeMux sync.Mutex
	// closed is set under writeMux before the handler returns; the
	// underlying conn is released to a pool right after that.
	closed bool
}

// inboundFrame is what clients send; Payload stays raw until the type is
// known.
type inboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
	RoomID    int64           `json:"roomId"`
	IsTyping  *bool           `json:"isTyping"`
}

type typingPayload struct {
	RoomID   int64       `json:"roomId"`
	User     domain.User `json:"user"`
	IsTyping bool        `json:"isTyping"`
}

type membershipPayload struct {
	RoomID int64       `json:"roomId"`
	User   domain.User `json:"user"`
}

type statusPayload struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

type WSManager struct {
	backend *Backend
	logger  *slog.Logger
	// Active connections by user id; one user may hold several.
	connections map[int64][]*WSConnection
	mutex       sync.RWMutex
}

func NewWSManager(backend *Backend, logger *slog.Logger) *WSManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSManager{
		backend:     backend,
		logger:      logger,
		connections: make(map[int64][]*WSConnection),
	}
}

// addConnection reports whether this is the user's first connection.
func (w *WSManager) addConnection(conn *WSConnection) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	id := conn.User.ID
	w.connections[id] = append(w.connections[id], conn)
	w.logger.Debug("added connection", slog.Int64("user_id", id), slog.Int("user_connections", len(w.connections[id])))
	return len(w.connections[id]) == 1
}

// removeConnection reports whether the user has no connection left.
func (w *WSManager) removeConnection(conn *WSConnection) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	id := conn.User.ID
	conns := w.connections[id]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(w.connections, id)
		return true
	}
	w.connections[id] = conns
	return false
}

func (w *WSManager) connectionsOf(userIDs []int64) []*WSConnection {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	var out []*WSConnection
	for _, id := range userIDs {
		out = append(out, w.connections[id]...)
	}
	return out
}

func (w *WSManager) allConnections() []*WSConnection {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	var out []*WSConnection
	for _, conns := range w.connections {
		out = append(out, conns...)
	}
	return out
}

func (w *WSManager) broadcast(conns []*WSConnection, message interface{}) {
	if len(conns) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *WSConnection) {
			defer wg.Done()
			if err := c.safeWriteJSON(message); err != nil && !errors.Is(err, errConnectionClosed) {
				w.logger.Warn("broadcast write failed", slog.Int64("user_id", c.User.ID), slog.Any("error", err))
			}
		}(conn)
	}
	wg.Wait()
}

// BroadcastToRoom sends an event to every connection of the room's
// members except those of the user except.
func (w *WSManager) BroadcastToRoom(roomID int64, eventType string, payload interface{}, except int64) {
	var targets []int64
	for _, id := range w.backend.MemberIDs(roomID) {
		if id != except {
			targets = append(targets, id)
		}
	}
	frame := domain.NewFrame(eventType)
	frame.RoomID = roomID
	frame.Payload = payload
	w.broadcast(w.connectionsOf(targets), frame)
}

func (w *WSManager) BroadcastToUsers(userIDs []int64, eventType string, payload interface{}) {
	frame := domain.NewFrame(eventType)
	frame.Payload = payload
	w.broadcast(w.connectionsOf(userIDs), frame)
}

func (w *WSManager) BroadcastMessage(msg domain.Message) {
	roomID, _ := msg.TargetRoom()
	w.BroadcastToRoom(roomID, domain.EventMessage, msg, 0)
}

func (w *WSManager) BroadcastTyping(roomID int64, user domain.User, isTyping bool) {
	w.BroadcastToRoom(roomID, domain.EventTyping, typingPayload{RoomID: roomID, User: user, IsTyping: isTyping}, user.ID)
}

func (w *WSManager) BroadcastMembership(roomID int64, user domain.User, joined bool) {
	event := domain.EventUserLeft
	if joined {
		event = domain.EventUserJoined
	}
	w.BroadcastToRoom(roomID, event, membershipPayload{RoomID: roomID, User: user}, user.ID)
}

func (w *WSManager) broadcastStatus(userID int64, status string) {
	frame := domain.NewFrame(domain.EventUserStatus)
	frame.Payload = statusPayload{UserID: userID, Status: status}
	w.broadcast(w.allConnections(), frame)
}

// OnlineUsers lists every user with at least one open connection.
func (w *WSManager) OnlineUsers() []domain.User {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	out := make([]domain.User, 0, len(w.connections))
	for _, conns := range w.connections {
		u := conns[0].User
		u.Status = "ONLINE"
		out = append(out, u)
	}
	return out
}

func (w *WSManager) HandleConnection(c *websocket.Conn, user domain.User) {
	defer c.Close()

	wsConn := &WSConnection{Conn: c, User: user}
	defer wsConn.markClosed()
	if w.addConnection(wsConn) {
		w.broadcastStatus(user.ID, "ONLINE")
	}
	defer func() {
		if w.removeConnection(wsConn) {
			w.broadcastStatus(user.ID, "OFFLINE")
		}
		w.logger.Info("websocket client disconnected", slog.Int64("user_id", user.ID))
	}()

	w.reply(wsConn, eventEstablished, "", map[string]interface{}{"userId": user.ID})
	w.logger.Info("websocket client connected", slog.Int64("user_id", user.ID))

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			w.logger.Debug("websocket read error", slog.Int64("user_id", user.ID), slog.Any("error", err))
			return
		}
		var msg inboundFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			w.replyError(wsConn, "", "malformed frame")
			continue
		}
		w.handleIncomingMessage(wsConn, &msg)
	}
}

func (w *WSManager) handleIncomingMessage(conn *WSConnection, msg *inboundFrame) {
	switch strings.ToUpper(msg.Type) {
	case strings.ToUpper(domain.FrameIdentify):
		var p domain.IdentifyPayload
		_ = json.Unmarshal(msg.Payload, &p)
		u, ok := w.backend.Authenticate(p.Token)
		if !ok || u.ID != conn.User.ID || (p.UserID != 0 && p.UserID != u.ID) {
			w.replyError(conn, msg.RequestID, "identify rejected")
			return
		}
		w.reply(conn, eventIdentified, msg.RequestID, conn.User)

	case domain.FrameMessage:
		// Messages are persisted and fanned out through the REST path; the
		// socket copy is only acknowledged.
		w.reply(conn, eventAck, msg.RequestID, map[string]interface{}{"roomId": msg.RoomID})

	case domain.FrameTyping:
		if msg.RoomID == 0 || msg.IsTyping == nil {
			w.replyError(conn, msg.RequestID, "typing frame needs roomId and isTyping")
			return
		}
		if !w.isMember(msg.RoomID, conn.User.ID) {
			w.replyError(conn, msg.RequestID, "not a member of this room")
			return
		}
		w.BroadcastTyping(msg.RoomID, conn.User, *msg.IsTyping)

	case strings.ToUpper(domain.FrameJoinRoom):
		if !w.isMember(msg.RoomID, conn.User.ID) {
			w.replyError(conn, msg.RequestID, "not a member of this room")
			return
		}
		w.reply(conn, eventAck, msg.RequestID, map[string]interface{}{"roomId": msg.RoomID})

	case strings.ToUpper(domain.FrameRoomCreate):
		w.reply(conn, eventAck, msg.RequestID, map[string]interface{}{"roomId": msg.RoomID})

	case "PING":
		w.reply(conn, eventPong, msg.RequestID, nil)

	default:
		w.logger.Debug("unknown frame type", slog.String("type", msg.Type), slog.Int64("user_id", conn.User.ID))
		w.replyError(conn, msg.RequestID, "Unknown message type: "+msg.Type)
	}
}

func (w *WSManager) isMember(roomID, userID int64) bool {
	for _, id := range w.backend.MemberIDs(roomID) {
		if id == userID {
			return true
		}
	}
	return false
}

func (w *WSManager) reply(conn *WSConnection, eventType, requestID string, payload interface{}) {
	frame := domain.NewFrame(eventType)
	frame.RequestID = requestID
	frame.Payload = payload
	if err := conn.safeWriteJSON(frame); err != nil && !errors.Is(err, errConnectionClosed) {
		w.logger.Warn("reply write failed", slog.String("type", eventType), slog.Any("error", err))
	}
}

func (w *WSManager) replyError(conn *WSConnection, requestID, message string) {
	w.reply(conn, eventError, requestID, map[string]string{"message": message})
}

// markClosed waits for an in-flight write and refuses later ones.
func (conn *WSConnection) markClosed() {
	conn.writeMux.Lock()
	conn.closed = true
	conn.writeMux.Unlock()
}

// safeWriteJSON serializes writes on one connection and survives a panic
// from a connection that is being torn down.
func (conn *WSConnection) safeWriteJSON(message interface{}) (err error) {
	conn.writeMux.Lock()
	defer conn.writeMux.Unlock()
	if conn.closed {
		return errConnectionClosed
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic in safeWriteJSON", slog.Int64("user_id", conn.User.ID), slog.Any("panic", r))
		}
	}()

	return conn.Conn.WriteJSON(message)
}
