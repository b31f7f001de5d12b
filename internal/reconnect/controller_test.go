package reconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"majlis-chat/internal/domain"
	"majlis-chat/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	handlers transport.Handlers
	sendErr  error
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
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

func (c *fakeConn) drop() {
	c.handlers.OnClose(errors.New("connection reset"))
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  []error
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(_ context.Context, _ string, _ string, h transport.Handlers) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.fail) > 0 {
		err := d.fail[0]
		d.fail = d.fail[1:]
		if err != nil {
			return nil, err
		}
	}
	c := &fakeConn{handlers: h}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fireLast() {
	c.timers[len(c.timers)-1].fn()
}

func (c *fakeClock) delays() []time.Duration {
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

type harness struct {
	ctrl        *Controller
	dialer      *fakeDialer
	clock       *fakeClock
	transitions []domain.ConnectionState
}

func newHarness(t *testing.T, cfg Config, token string, userID int64) *harness {
	t.Helper()
	h := &harness{dialer: &fakeDialer{}, clock: &fakeClock{}}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "ws://chat.test/ws"
	}
	h.ctrl = NewController(Options{
		Config:      cfg,
		Dialer:      h.dialer,
		Credentials: func() (string, int64) { return token, userID },
		AfterFunc:   h.clock.AfterFunc,
		Go:          func(f func()) { f() },
	})
	h.ctrl.OnStateChange(func(_, s domain.ConnectionState) {
		h.transitions = append(h.transitions, s)
	})
	return h
}

func TestBackoffSequence(t *testing.T) {
	want := []time.Duration{1000, 2000, 4000, 8000, 16000, 30000, 30000, 30000}
	for i, ms := range want {
		got := Backoff(i+1, DefaultBaseDelay, DefaultMaxDelay)
		assert.Equal(t, ms*time.Millisecond, got, "attempt %d", i+1)
	}
	assert.Equal(t, time.Second, Backoff(0, DefaultBaseDelay, DefaultMaxDelay))
	assert.Equal(t, 30*time.Second, Backoff(64, DefaultBaseDelay, DefaultMaxDelay))
}

func TestConnectSendsIdentifyFrame(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.Connect()

	require.Equal(t, domain.Connected, h.ctrl.State())
	assert.Equal(t, []domain.ConnectionState{domain.Connecting, domain.Connected}, h.transitions)

	conn := h.dialer.last()
	require.Len(t, conn.sent, 1)
	var frame struct {
		Type    string                 `json:"type"`
		Payload domain.IdentifyPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(conn.sent[0], &frame))
	assert.Equal(t, domain.FrameIdentify, frame.Type)
	assert.Equal(t, "tok", frame.Payload.Token)
	assert.Equal(t, int64(7), frame.Payload.UserID)
}

func TestConnectWithoutCredentialsIsSilent(t *testing.T) {
	for _, tc := range []struct {
		token  string
		userID int64
	}{{"", 7}, {"tok", 0}} {
		h := newHarness(t, Config{}, tc.token, tc.userID)
		h.ctrl.Connect()
		assert.Equal(t, domain.Disconnected, h.ctrl.State())
		assert.Zero(t, h.dialer.dials)
		assert.Empty(t, h.transitions)
	}
}

func TestDropSchedulesBackoffAndResetsOnOpen(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.Connect()
	h.dialer.fail = []error{errors.New("refused")}

	h.dialer.last().drop()
	require.Equal(t, domain.Reconnecting, h.ctrl.State())
	assert.Equal(t, 1, h.ctrl.Attempts())

	h.clock.fireLast()
	require.Equal(t, domain.Reconnecting, h.ctrl.State())
	assert.Equal(t, 2, h.ctrl.Attempts())

	h.clock.fireLast()
	require.Equal(t, domain.Connected, h.ctrl.State())
	assert.Equal(t, 0, h.ctrl.Attempts())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.clock.delays())
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, Config{MaxAttempts: 3}, "tok", 7)
	for i := 0; i < 10; i++ {
		h.dialer.fail = append(h.dialer.fail, fmt.Errorf("refused %d", i))
	}

	h.ctrl.Connect()
	for h.ctrl.State() == domain.Reconnecting {
		h.clock.fireLast()
	}

	assert.Equal(t, domain.Failed, h.ctrl.State())
	assert.Equal(t, 4, h.dialer.dials)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.clock.delays())

	h.ctrl.Connect()
	assert.Equal(t, domain.Failed, h.ctrl.State())
	assert.Equal(t, 4, h.dialer.dials)

	h.dialer.fail = nil
	h.ctrl.Reconnect()
	assert.Equal(t, domain.Connected, h.ctrl.State())
	assert.Equal(t, 0, h.ctrl.Attempts())
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.Connect()
	h.dialer.last().drop()
	require.Equal(t, domain.Reconnecting, h.ctrl.State())

	pending := h.clock.timers[len(h.clock.timers)-1]
	h.ctrl.Disconnect()
	assert.True(t, pending.stopped)
	assert.Equal(t, domain.Disconnected, h.ctrl.State())

	dials := h.dialer.dials
	pending.fn()
	assert.Equal(t, dials, h.dialer.dials)
	assert.Equal(t, domain.Disconnected, h.ctrl.State())
	assert.NotContains(t, h.transitions[len(h.transitions)-1:], domain.Connecting)

	h.ctrl.Reconnect()
	assert.Equal(t, domain.Connected, h.ctrl.State())
}

func TestDisconnectWhileConnectedDoesNotRetry(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.Connect()
	conn := h.dialer.last()

	h.ctrl.Disconnect()
	assert.True(t, conn.closed)
	assert.Equal(t, domain.Disconnected, h.ctrl.State())
	assert.Empty(t, h.clock.timers)
}

func TestStaleCloseIsIgnored(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.Connect()
	first := h.dialer.last()

	h.ctrl.Reconnect()
	require.Equal(t, domain.Connected, h.ctrl.State())
	require.NotSame(t, first, h.dialer.last())

	first.drop()
	assert.Equal(t, domain.Connected, h.ctrl.State())
	assert.Empty(t, h.clock.timers)
}

func TestInvalidEndpointFailsImmediately(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.dialer.fail = []error{fmt.Errorf("%w: bad scheme", domain.ErrInvalidEndpoint)}

	h.ctrl.Connect()
	assert.Equal(t, domain.Failed, h.ctrl.State())
	assert.Empty(t, h.clock.timers)
}

func TestIdentifyFailureCountsAsFailedAttempt(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.dialer.conns = nil
	d := &failingIdentifyDialer{fakeDialer: h.dialer}
	h.ctrl.dialer = d

	h.ctrl.Connect()
	assert.Equal(t, domain.Reconnecting, h.ctrl.State())
	assert.Equal(t, 1, h.ctrl.Attempts())
	assert.Len(t, h.clock.timers, 1)
}

type failingIdentifyDialer struct {
	*fakeDialer
}

func (d *failingIdentifyDialer) Dial(ctx context.Context, endpoint, token string, h transport.Handlers) (transport.Conn, error) {
	conn, err := d.fakeDialer.Dial(ctx, endpoint, token, h)
	if err != nil {
		return nil, err
	}
	conn.(*fakeConn).sendErr = errors.New("broken pipe")
	return conn, nil
}

func TestSendRequiresConnected(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	assert.ErrorIs(t, h.ctrl.Send([]byte("x")), domain.ErrNotConnected)

	h.ctrl.Connect()
	require.NoError(t, h.ctrl.SendJSON(map[string]string{"type": "TYPING"}))
	assert.Len(t, h.dialer.last().sent, 2)
}

func TestFramesFromSupersededConnectionAreDropped(t *testing.T) {
	var frames []string
	h := &harness{dialer: &fakeDialer{}, clock: &fakeClock{}}
	h.ctrl = NewController(Options{
		Config:      Config{Endpoint: "ws://chat.test/ws"},
		Dialer:      h.dialer,
		Credentials: func() (string, int64) { return "tok", 1 },
		OnFrame:     func(f []byte) { frames = append(frames, string(f)) },
		AfterFunc:   h.clock.AfterFunc,
		Go:          func(f func()) { f() },
	})
	h.ctrl.Connect()
	first := h.dialer.last()
	h.ctrl.Reconnect()

	first.handlers.OnFrame([]byte("old"))
	h.dialer.last().handlers.OnFrame([]byte("new"))
	assert.Equal(t, []string{"new"}, frames)
}

func TestListenersSeeTransitionsInOrderAcrossGoroutines(t *testing.T) {
	dialer := &fakeDialer{}
	ctrl := NewController(Options{
		Config:      Config{Endpoint: "ws://chat.test/ws"},
		Dialer:      dialer,
		Credentials: func() (string, int64) { return "tok", 7 },
		AfterFunc:   (&fakeClock{}).AfterFunc,
	})

	var mu sync.Mutex
	var seen []domain.ConnectionState
	reached := make(chan struct{})
	release := make(chan struct{})
	ctrl.OnStateChange(func(_, s domain.ConnectionState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		if s == domain.Connected {
			close(reached)
			<-release
		}
	})

	ctrl.Connect()
	<-reached
	ctrl.Disconnect()
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ConnectionState{domain.Connecting, domain.Connected, domain.Disconnected}, seen)
	assert.Equal(t, seen[len(seen)-1], ctrl.State())
}

func TestListenerMayDisconnectDuringDelivery(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.OnStateChange(func(_, s domain.ConnectionState) {
		if s == domain.Connected {
			h.ctrl.Disconnect()
		}
	})

	h.ctrl.Connect()
	assert.Equal(t, domain.Disconnected, h.ctrl.State())
	assert.Equal(t, []domain.ConnectionState{domain.Connecting, domain.Connected, domain.Disconnected}, h.transitions)
}

func identifyRequestID(t *testing.T, frame []byte) string {
	t.Helper()
	var f struct {
		Type      string `json:"type"`
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(frame, &f))
	require.Equal(t, domain.FrameIdentify, f.Type)
	return f.RequestID
}

func TestRejectedIdentifyFails(t *testing.T) {
	h := newHarness(t, Config{}, "tok", 7)
	h.ctrl.Connect()
	conn := h.dialer.last()
	id := identifyRequestID(t, conn.sent[0])
	require.NotEmpty(t, id)

	assert.False(t, h.ctrl.RejectIdentity("some-other-request"))
	assert.Equal(t, domain.Connected, h.ctrl.State())

	assert.True(t, h.ctrl.RejectIdentity(id))
	assert.Equal(t, domain.Failed, h.ctrl.State())
	assert.True(t, conn.closed)
	assert.Empty(t, h.clock.timers)

	assert.False(t, h.ctrl.RejectIdentity(id))
	h.ctrl.Connect()
	assert.Equal(t, domain.Failed, h.ctrl.State())

	h.ctrl.Reconnect()
	assert.Equal(t, domain.Connected, h.ctrl.State())
	assert.NotEqual(t, id, identifyRequestID(t, h.dialer.last().sent[0]))
}
