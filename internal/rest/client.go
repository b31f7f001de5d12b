// Package rest is the chat server's HTTP API as seen by the client. Calls
// are never retried here; callers decide.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"majlis-chat/internal/domain"

	"github.com/valyala/fasthttp"
)

type TokenSource func() string

type Client struct {
	baseURL string
	token   TokenSource
	http    *fasthttp.Client
	timeout time.Duration
}

func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                     "majlis-chat",
			ReadTimeout:              timeout,
			WriteTimeout:             timeout,
			MaxIdleConnDuration:      time.Minute,
			NoDefaultUserAgentHeader: true,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*domain.APIResponse, error) {
	token := ""
	if c.token != nil {
		token = c.token()
	}
	if token == "" {
		return nil, domain.ErrAuthenticationRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("chat api %s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	var envelope domain.APIResponse
	decodeErr := json.Unmarshal(resp.Body(), &envelope)

	if status == http.StatusUnauthorized {
		return nil, fmt.Errorf("chat api %s %s: %w", method, path, domain.ErrAuthenticationRequired)
	}
	if status < 200 || status >= 300 {
		msg := envelope.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(status)
		}
		return nil, &domain.APIError{Status: status, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if !envelope.Success {
		return nil, &domain.APIError{Status: status, Message: envelope.Message}
	}
	return &envelope, nil
}

func (c *Client) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	res, err := c.do(ctx, fasthttp.MethodPost, "/rooms", nil, req)
	if err != nil {
		return domain.Room{}, err
	}
	if res.Room == nil {
		return domain.Room{}, errors.New("create room: response has no room")
	}
	return *res.Room, nil
}

func (c *Client) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	q := url.Values{}
	setInt(q, "page", int64(filter.Page), true)
	setInt(q, "size", int64(filter.Size), false)
	setString(q, "type", string(filter.Type))
	setInt(q, "gameId", filter.GameID, false)
	setString(q, "search", filter.Search)
	res, err := c.do(ctx, fasthttp.MethodGet, "/rooms", q, nil)
	if err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID int64) (domain.Room, error) {
	res, err := c.do(ctx, fasthttp.MethodPost, roomPath(roomID, "join"), nil, nil)
	if err != nil {
		return domain.Room{}, err
	}
	if res.Room == nil {
		return domain.Room{ID: roomID}, nil
	}
	return *res.Room, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID int64) error {
	_, err := c.do(ctx, fasthttp.MethodPost, roomPath(roomID, "leave"), nil, nil)
	return err
}

func (c *Client) ListMessages(ctx context.Context, roomID int64, page domain.MessagePage) ([]domain.Message, error) {
	q := url.Values{}
	setInt(q, "page", int64(page.Page), true)
	setInt(q, "size", int64(page.Size), false)
	setInt(q, "before", page.Before, false)
	setInt(q, "after", page.After, false)
	setString(q, "messageType", string(page.MessageType))
	setInt(q, "senderId", page.SenderID, false)
	res, err := c.do(ctx, fasthttp.MethodGet, roomPath(roomID, "messages"), q, nil)
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error) {
	res, err := c.do(ctx, fasthttp.MethodPost, roomPath(roomID, "messages"), nil, req)
	if err != nil {
		return domain.Message{}, err
	}
	if res.ChatMessage == nil {
		return domain.Message{}, errors.New("send message: response has no chatMessage")
	}
	return *res.ChatMessage, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := c.do(ctx, fasthttp.MethodDelete, "/messages/"+strconv.FormatInt(messageID, 10), nil, nil)
	return err
}

func (c *Client) ListMembers(ctx context.Context, roomID int64) ([]domain.User, error) {
	res, err := c.do(ctx, fasthttp.MethodGet, roomPath(roomID, "members"), nil, nil)
	if err != nil {
		return nil, err
	}
	return res.Members, nil
}

func (c *Client) AddMember(ctx context.Context, roomID, userID int64) error {
	_, err := c.do(ctx, fasthttp.MethodPost, roomPath(roomID, "members"), nil, domain.AddMemberRequest{UserID: userID})
	return err
}

func (c *Client) StartDirectMessage(ctx context.Context, userID int64) (domain.Room, error) {
	res, err := c.do(ctx, fasthttp.MethodPost, "/direct/"+strconv.FormatInt(userID, 10), nil, nil)
	if err != nil {
		return domain.Room{}, err
	}
	if res.Room == nil {
		return domain.Room{}, errors.New("start direct message: response has no room")
	}
	return *res.Room, nil
}

func (c *Client) OnlineUsers(ctx context.Context) ([]domain.User, error) {
	res, err := c.do(ctx, fasthttp.MethodGet, "/online-users", nil, nil)
	if err != nil {
		return nil, err
	}
	return res.Users, nil
}

func (c *Client) SendTyping(ctx context.Context, roomID int64, isTyping bool) error {
	_, err := c.do(ctx, fasthttp.MethodPost, roomPath(roomID, "typing"), nil, domain.TypingRequest{IsTyping: isTyping})
	return err
}

func roomPath(roomID int64, action string) string {
	return "/rooms/" + strconv.FormatInt(roomID, 10) + "/" + action
}

func setInt(q url.Values, key string, v int64, keepZero bool) {
	if v != 0 || keepZero {
		q.Set(key, strconv.FormatInt(v, 10))
	}
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}
