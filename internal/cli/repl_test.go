package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"majlis-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	state      domain.ChatState
	sent       []string
	typing     []bool
	selected   int64
	reconnects int
	sendErr    error
}

func (f *fakeSession) ListRooms(_ context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	return []domain.Room{{ID: 5, Name: "lobby" + filter.Search, Type: domain.RoomTypeGroup, CurrentMembers: 2, MaxMembers: 10}}, nil
}

func (f *fakeSession) JoinRoom(_ context.Context, roomID int64) (domain.Room, error) {
	return domain.Room{ID: roomID, Name: "lobby"}, nil
}

func (f *fakeSession) SelectRoom(roomID int64) error {
	f.selected = roomID
	return nil
}

func (f *fakeSession) GetMessages(_ context.Context, roomID int64, page domain.MessagePage) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeSession) SendMessage(_ context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	f.sent = append(f.sent, req.Content)
	return domain.Message{ID: int64(len(f.sent)), Content: req.Content}, nil
}

func (f *fakeSession) SendTyping(_ context.Context, _ int64, isTyping bool) error {
	f.typing = append(f.typing, isTyping)
	return nil
}

func (f *fakeSession) GetOnlineUsers(context.Context) ([]domain.User, error) {
	return []domain.User{{ID: 7, Username: "sara", CurrentGame: "chess"}}, nil
}

func (f *fakeSession) Reconnect() {
	f.reconnects++
}

func (f *fakeSession) State() domain.ChatState {
	return f.state
}

func TestREPLCommands(t *testing.T) {
	sess := &fakeSession{state: domain.EmptyState()}
	var buf bytes.Buffer
	r := newREPL(sess, &buf)
	ctx := context.Background()

	quit, err := r.handle(ctx, "/join 5")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, int64(5), sess.selected)
	assert.Contains(t, buf.String(), "now in lobby (5)")

	_, err = r.handle(ctx, `hello   there`)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello   there"}, sess.sent)

	_, err = r.handle(ctx, "/typing")
	require.NoError(t, err)
	_, err = r.handle(ctx, "/typing off")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, sess.typing)

	_, err = r.handle(ctx, `/rooms "big room"`)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "lobbybig room")

	_, err = r.handle(ctx, "/online")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "playing chess")

	_, err = r.handle(ctx, "/reconnect")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.reconnects)

	_, err = r.handle(ctx, "/dance")
	assert.ErrorIs(t, err, errUnknownCommand)

	_, err = r.handle(ctx, "/join abc")
	assert.Error(t, err)

	quit, err = r.handle(ctx, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestREPLRenderPrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	r := newREPL(&fakeSession{}, &buf)
	r.room = 5

	state := domain.EmptyState()
	state.Messages[5] = []domain.Message{
		{ID: 1, Content: "hi", Sender: &domain.User{ID: 7, Username: "sara"}, CreatedAt: domain.Timestamp{Time: time.Now()}},
		{ID: -1, Content: "pending", Delivery: domain.Pending},
	}
	r.render(state)
	r.render(state)

	assert.Equal(t, 1, strings.Count(buf.String(), "sara: hi"))
	assert.NotContains(t, buf.String(), "pending")

	state.TypingUsers[5] = []domain.User{{ID: 7, Username: "sara"}}
	r.render(state)
	r.render(state)
	assert.Equal(t, 1, strings.Count(buf.String(), "sara typing..."))
}

func TestREPLRunStopsOnQuit(t *testing.T) {
	sess := &fakeSession{sendErr: errors.New("no room selected")}
	var buf bytes.Buffer
	r := newREPL(sess, &buf)

	err := r.run(context.Background(), strings.NewReader("hello\n/quit\nnever\n"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "error: no room selected")
	assert.Empty(t, sess.sent)
}

func TestParseUserFlag(t *testing.T) {
	token, u, err := parseUserFlag("tok:7:sara")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, domain.User{ID: 7, Username: "sara"}, u)

	_, u, err = parseUserFlag("tok:8")
	require.NoError(t, err)
	assert.Equal(t, int64(8), u.ID)

	for _, bad := range []string{"tok", ":1", "tok:x", "tok:0"} {
		_, _, err := parseUserFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatMessage(t *testing.T) {
	at := domain.Timestamp{Time: time.Date(2024, 3, 1, 10, 30, 0, 0, time.Local)}
	assert.Equal(t, "[10:30] sara: hi", formatMessage(domain.Message{Content: "hi", Sender: &domain.User{ID: 7, Username: "sara"}, CreatedAt: at}))
	assert.Equal(t, "[--:--] user-9: (deleted)", formatMessage(domain.Message{Content: "x", IsDeleted: true, Sender: &domain.User{ID: 9}}))
	assert.Equal(t, "[--:--] unknown: yo (sending)", formatMessage(domain.Message{Content: "yo", Delivery: domain.Pending}))
}

func TestRootHasCommands(t *testing.T) {
	root := NewRootCmd(testConfig(), nil)
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"rooms", "join", "history", "send", "online", "chat", "stub-server", "tap"} {
		assert.True(t, names[want], want)
	}
}
