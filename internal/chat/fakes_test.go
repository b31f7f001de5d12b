package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"majlis-chat/internal/dispatch"
	"majlis-chat/internal/domain"
	cache "majlis-chat/internal/infrastructure/redis"
	"majlis-chat/internal/reconnect"
	"majlis-chat/internal/transport"
)

type fakeAPI struct {
	mu          sync.Mutex
	rooms       []domain.Room
	listErr     error
	joinErr     error
	history     map[int64][]domain.Message
	historyErr  error
	historyHook func()
	sendFn      func(roomID int64, req domain.SendMessageRequest) (domain.Message, error)
	typing      []bool
	deleted     []int64
	online      []domain.User
	listCalls   int
	leaveCalled []int64
}

func (a *fakeAPI) CreateRoom(_ context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	return domain.Room{ID: 99, Name: req.Name, Type: req.Type}, nil
}

func (a *fakeAPI) ListRooms(_ context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	if a.listErr != nil {
		return nil, a.listErr
	}
	if filter.Search != "" {
		var out []domain.Room
		for _, r := range a.rooms {
			if r.Name == filter.Search {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return append([]domain.Room(nil), a.rooms...), nil
}

func (a *fakeAPI) JoinRoom(_ context.Context, roomID int64) (domain.Room, error) {
	if a.joinErr != nil {
		return domain.Room{}, a.joinErr
	}
	return domain.Room{ID: roomID, Name: "room", CurrentMembers: 1}, nil
}

func (a *fakeAPI) LeaveRoom(_ context.Context, roomID int64) error {
	a.leaveCalled = append(a.leaveCalled, roomID)
	return nil
}

func (a *fakeAPI) ListMessages(_ context.Context, roomID int64, _ domain.MessagePage) ([]domain.Message, error) {
	if a.historyHook != nil {
		a.historyHook()
	}
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return a.history[roomID], nil
}

func (a *fakeAPI) SendMessage(_ context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	if a.sendFn == nil {
		return domain.Message{}, errors.New("no send handler")
	}
	return a.sendFn(roomID, req)
}

func (a *fakeAPI) DeleteMessage(_ context.Context, messageID int64) error {
	a.deleted = append(a.deleted, messageID)
	return nil
}

func (a *fakeAPI) ListMembers(_ context.Context, _ int64) ([]domain.User, error) {
	return []domain.User{{ID: 1}, {ID: 7}}, nil
}

func (a *fakeAPI) AddMember(_ context.Context, _, _ int64) error {
	return nil
}

func (a *fakeAPI) StartDirectMessage(_ context.Context, userID int64) (domain.Room, error) {
	return domain.Room{ID: 500 + userID, Type: domain.RoomTypeDirect}, nil
}

func (a *fakeAPI) OnlineUsers(_ context.Context) ([]domain.User, error) {
	return a.online, nil
}

func (a *fakeAPI) SendTyping(_ context.Context, _ int64, isTyping bool) error {
	a.typing = append(a.typing, isTyping)
	return nil
}

type fakeConn struct {
	mu       sync.Mutex
	sent     []domain.WebSocketMessage
	handlers transport.Handlers
	closed   bool
}

func (c *fakeConn) Send(frame []byte) error {
	var msg domain.WebSocketMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already && c.handlers.OnClose != nil {
		c.handlers.OnClose(nil)
	}
	return nil
}

func (c *fakeConn) push(frame string) {
	c.handlers.OnFrame([]byte(frame))
}

func (c *fakeConn) framesOf(frameType string) []domain.WebSocketMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.WebSocketMessage
	for _, f := range c.sent {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

type fakeDialer struct {
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string, _ string, h transport.Handlers) (transport.Conn, error) {
	c := &fakeConn{handlers: h}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	return d.conns[len(d.conns)-1]
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) reconnect.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// typingTimers returns every typing window timer in creation order.
func (c *fakeClock) typingTimers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if t.delay == TypingWindow {
			out = append(out, t)
		}
	}
	return out
}

type fakeCache struct {
	saved  map[int64]domain.ChatState
	loaded *cache.Snapshot
}

func (c *fakeCache) SaveSnapshot(_ context.Context, userID int64, state domain.ChatState) error {
	if c.saved == nil {
		c.saved = make(map[int64]domain.ChatState)
	}
	c.saved[userID] = state
	return nil
}

func (c *fakeCache) LoadSnapshot(_ context.Context, _ int64) (*cache.Snapshot, error) {
	return c.loaded, nil
}

type fakeTap struct {
	mu    sync.Mutex
	kinds []string
}

func (t *fakeTap) Publish(_ context.Context, ev dispatch.Event) error {
	t.mu.Lock()
	t.kinds = append(t.kinds, ev.Kind())
	t.mu.Unlock()
	return nil
}
