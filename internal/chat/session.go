// Package chat is the session façade the rest of an application talks to.
// It owns one state store and one connection controller and keeps them in
// step with the REST API.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"majlis-chat/internal/dispatch"
	"majlis-chat/internal/domain"
	cache "majlis-chat/internal/infrastructure/redis"
	"majlis-chat/internal/outbox"
	"majlis-chat/internal/reconnect"
	"majlis-chat/internal/store"
	"majlis-chat/internal/transport"

	"github.com/google/uuid"
)

// TypingWindow is how long a typing indicator lives without a refresh.
const TypingWindow = 3 * time.Second

const (
	tapTimeout          = 5 * time.Second
	initialHistoryPage  = 50
	eventConnectionStat = "CONNECTION_STATUS"
	eventError          = "ERROR"
)

type API interface {
	CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error)
	ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error)
	JoinRoom(ctx context.Context, roomID int64) (domain.Room, error)
	LeaveRoom(ctx context.Context, roomID int64) error
	ListMessages(ctx context.Context, roomID int64, page domain.MessagePage) ([]domain.Message, error)
	SendMessage(ctx context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error)
	DeleteMessage(ctx context.Context, messageID int64) error
	ListMembers(ctx context.Context, roomID int64) ([]domain.User, error)
	AddMember(ctx context.Context, roomID, userID int64) error
	StartDirectMessage(ctx context.Context, userID int64) (domain.Room, error)
	OnlineUsers(ctx context.Context) ([]domain.User, error)
	SendTyping(ctx context.Context, roomID int64, isTyping bool) error
}

// Cache keeps a warm-start copy of the state between sessions.
type Cache interface {
	SaveSnapshot(ctx context.Context, userID int64, state domain.ChatState) error
	LoadSnapshot(ctx context.Context, userID int64) (*cache.Snapshot, error)
}

// Tap receives every decoded inbound event.
type Tap interface {
	Publish(ctx context.Context, ev dispatch.Event) error
}

type Options struct {
	// ID names the session in logs and tap records; a UUID when empty.
	ID     string
	Token  string
	UserID int64
	// User is the local profile stamped on placeholders. Its ID defaults
	// to UserID.
	User      domain.User
	API       API
	Dialer    transport.Dialer
	Endpoint  string
	Reconnect reconnect.Config
	Cache     Cache
	Tap       Tap
	Logger    *slog.Logger
	AfterFunc reconnect.AfterFunc
	Go        func(func())
}

type typingKey struct {
	roomID int64
	userID int64
}

type expiry struct {
	timer reconnect.Timer
	seq   uint64
}

type Session struct {
	id     string
	api    API
	cache  Cache
	tap    Tap
	logger *slog.Logger
	after  reconnect.AfterFunc
	spawn  func(func())

	store      *store.Store
	ctrl       *reconnect.Controller
	dispatcher *dispatch.Dispatcher
	outbox     *outbox.Coordinator

	credMu sync.RWMutex
	token  string
	user   domain.User

	timerMu  sync.Mutex
	seq      uint64
	inbound  map[typingKey]expiry
	outbound map[int64]expiry
}

func NewSession(opts Options) *Session {
	s := &Session{
		id:       uuid.NewString(),
		api:      opts.API,
		cache:    opts.Cache,
		tap:      opts.Tap,
		logger:   opts.Logger,
		after:    opts.AfterFunc,
		spawn:    opts.Go,
		store:    store.New(),
		token:    opts.Token,
		user:     opts.User,
		inbound:  make(map[typingKey]expiry),
		outbound: make(map[int64]expiry),
	}
	if opts.ID != "" {
		s.id = opts.ID
	}
	if s.user.ID == 0 {
		s.user.ID = opts.UserID
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	if s.after == nil {
		s.after = func(d time.Duration, f func()) reconnect.Timer { return time.AfterFunc(d, f) }
	}
	if s.spawn == nil {
		s.spawn = func(f func()) { go f() }
	}

	s.dispatcher = dispatch.NewDispatcher(s, s.logger)
	s.dispatcher.OnEvent(s.watchControl)
	if s.tap != nil {
		s.dispatcher.OnEvent(s.publish)
	}

	cfg := opts.Reconnect
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	s.ctrl = reconnect.NewController(reconnect.Options{
		Config:      cfg,
		Dialer:      opts.Dialer,
		Credentials: s.credentials,
		OnFrame:     s.dispatcher.HandleFrame,
		Logger:      s.logger,
		AfterFunc:   opts.AfterFunc,
		Go:          opts.Go,
	})
	s.ctrl.OnStateChange(s.connectionChanged)

	s.outbox = outbox.NewCoordinator(s.store, s.api, s.ctrl, s.localUser, s.logger)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// SetCredentials supplies the socket credentials once authentication has
// completed. It does not connect by itself.
func (s *Session) SetCredentials(token string, userID int64) {
	s.credMu.Lock()
	s.token = token
	s.user.ID = userID
	s.credMu.Unlock()
}

func (s *Session) credentials() (string, int64) {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.token, s.user.ID
}

func (s *Session) localUser() domain.User {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.user
}

// Start restores the cached snapshot, opens the socket and fetches the room
// list. The socket keeps connecting even when the room list fails.
func (s *Session) Start(ctx context.Context) error {
	_, userID := s.credentials()
	if s.cache != nil && userID != 0 {
		snap, err := s.cache.LoadSnapshot(ctx, userID)
		switch {
		case err != nil:
			s.logger.Warn("loading cached snapshot", slog.Any("error", err))
		case snap != nil:
			s.store.Restore(snap.Rooms, snap.Messages)
			s.logger.Debug("restored cached snapshot", slog.Int("rooms", len(snap.Rooms)))
		}
	}
	s.ctrl.Connect()
	_, err := s.ListRooms(ctx, domain.RoomFilter{})
	return err
}

func (s *Session) Reconnect() {
	s.ctrl.Reconnect()
}

// Disconnect closes the socket for good, stores a snapshot when a cache is
// configured and clears local state. The snapshot error, if any, is
// returned after the state has been reset.
func (s *Session) Disconnect(ctx context.Context) error {
	s.stopAllTimers()
	s.ctrl.Disconnect()

	var err error
	if _, userID := s.credentials(); s.cache != nil && userID != 0 {
		if err = s.cache.SaveSnapshot(ctx, userID, s.store.Snapshot()); err != nil {
			s.logger.Warn("saving snapshot", slog.Any("error", err))
		}
	}
	s.store.Reset()
	return err
}

func (s *Session) State() domain.ChatState {
	return s.store.Snapshot()
}

func (s *Session) ConnectionState() domain.ConnectionState {
	return s.ctrl.State()
}

func (s *Session) Subscribe(fn store.Observer) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}

func (s *Session) OnConnectionState(fn reconnect.StateListener) {
	s.ctrl.OnStateChange(fn)
}

func (s *Session) connectionChanged(old, new domain.ConnectionState) {
	s.logger.Info("connection state changed", slog.String("from", old.String()), slog.String("to", new.String()))

	if new == domain.Connected {
		if room := s.store.CurrentRoom(); room != nil {
			s.sendFrame(joinFrame(room.ID))
		}
	}
	if s.tap != nil {
		body, _ := json.Marshal(map[string]string{"from": old.String(), "to": new.String()})
		s.publish(dispatch.ControlEvent{Type: eventConnectionStat, Body: body})
	}
}

func (s *Session) publish(ev dispatch.Event) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), tapTimeout)
		defer cancel()
		if err := s.tap.Publish(ctx, ev); err != nil {
			s.logger.Warn("publishing event to tap", slog.String("kind", ev.Kind()), slog.Any("error", err))
		}
	})
}

// sendFrame is best-effort: frames are skipped while not connected.
func (s *Session) sendFrame(frame domain.WebSocketMessage) bool {
	if s.ctrl.State() != domain.Connected {
		return false
	}
	if err := s.ctrl.SendJSON(frame); err != nil {
		s.logger.Warn("sending frame", slog.String("type", frame.Type), slog.Any("error", err))
		return false
	}
	return true
}

func joinFrame(roomID int64) domain.WebSocketMessage {
	f := domain.NewFrame(domain.FrameJoinRoom)
	f.RoomID = roomID
	return f
}

// track records err as the latest failure of op in st, or clears a
// previous failure of op on success.
func (s *Session) track(st *store.Store, op string, err error) error {
	if err != nil {
		st.SetError(op, err.Error())
		return err
	}
	st.ClearError(op)
	return nil
}
