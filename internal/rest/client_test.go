package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"majlis-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func newServer(t *testing.T, status int, response string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*rec = recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   string(data),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/chat/", func() string { return "tok" }, 2*time.Second), rec
}

func TestListRoomsSendsFilterAndBearer(t *testing.T) {
	c, rec := newServer(t, 200, `{"success":true,"message":"ok","rooms":[{"id":1,"name":"lobby","type":"GROUP"}]}`)

	rooms, err := c.ListRooms(context.Background(), domain.RoomFilter{Size: 20, Type: domain.RoomTypeGroup, GameID: 3, Search: "val"})
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "lobby", rooms[0].Name)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/chat/rooms", rec.path)
	assert.Equal(t, "gameId=3&page=0&search=val&size=20&type=GROUP", rec.query)
	assert.Equal(t, "Bearer tok", rec.auth)
}

func TestSendMessagePostsBody(t *testing.T) {
	c, rec := newServer(t, 201, `{"success":true,"message":"sent","chatMessage":{"id":42,"content":"hello","room":{"id":5}}}`)

	msg, err := c.SendMessage(context.Background(), 5, domain.SendMessageRequest{Content: "hello", MessageType: domain.MessageTypeText})
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.ID)
	assert.Equal(t, "/api/chat/rooms/5/messages", rec.path)

	var body domain.SendMessageRequest
	require.NoError(t, json.Unmarshal([]byte(rec.body), &body))
	assert.Equal(t, "hello", body.Content)
	assert.Equal(t, domain.MessageTypeText, body.MessageType)
}

func TestListMessagesQuery(t *testing.T) {
	c, rec := newServer(t, 200, `{"success":true,"messages":[{"id":1,"content":"a"},{"id":2,"content":"b"}]}`)

	msgs, err := c.ListMessages(context.Background(), 5, domain.MessagePage{Page: 1, Size: 50, Before: 99, SenderID: 7})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "before=99&page=1&senderId=7&size=50", rec.query)
}

func TestUnauthorizedIsDistinct(t *testing.T) {
	c, _ := newServer(t, 401, `{"success":false,"message":"JWT expired"}`)

	_, err := c.OnlineUsers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthenticationRequired))
	assert.Contains(t, err.Error(), "authentication required")
}

func TestMissingTokenSkipsRequest(t *testing.T) {
	c, rec := newServer(t, 200, `{"success":true}`)
	c.token = func() string { return "" }

	err := c.LeaveRoom(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrAuthenticationRequired)
	assert.Empty(t, rec.method)
}

func TestApplicationErrorsAreVerbatim(t *testing.T) {
	c, _ := newServer(t, 409, `{"success":false,"message":"Room is full"}`)
	_, err := c.JoinRoom(context.Background(), 3)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, "Room is full", apiErr.Message)
}

func TestSuccessFalseWithOKStatus(t *testing.T) {
	c, _ := newServer(t, 200, `{"success":false,"message":"Already a member"}`)
	err := c.AddMember(context.Background(), 3, 9)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Already a member", apiErr.Message)
}

func TestNonJSONErrorFallsBackToStatusText(t *testing.T) {
	c, _ := newServer(t, 502, `<html>bad gateway</html>`)
	err := c.DeleteMessage(context.Background(), 1)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(502), apiErr.Message)
}

func TestJoinRoomWithoutRoomBody(t *testing.T) {
	c, rec := newServer(t, 200, `{"success":true,"message":"joined"}`)
	room, err := c.JoinRoom(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), room.ID)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/chat/rooms/8/join", rec.path)
}

func TestCancelledContext(t *testing.T) {
	c, rec := newServer(t, 200, `{"success":true}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SendTyping(ctx, 1, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.method)
}
