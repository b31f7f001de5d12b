// Package reconnect layers connection lifecycle, backoff and give-up
// semantics over a transport.Dialer.
package reconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"majlis-chat/internal/domain"
	"majlis-chat/internal/transport"

	"github.com/google/uuid"
)

// Credentials resolves the bearer token and current user id. Either being
// empty means authentication has not completed yet.
type Credentials func() (token string, userID int64)

type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

type Config struct {
	Endpoint    string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	DialTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

type StateListener func(old, new domain.ConnectionState)

type Options struct {
	Config      Config
	Dialer      transport.Dialer
	Credentials Credentials
	OnFrame     func(frame []byte)
	Logger      *slog.Logger
	// AfterFunc and Go are replaced in tests to drive timers and dials by hand.
	AfterFunc AfterFunc
	Go        func(func())
}

type transition struct {
	old, new domain.ConnectionState
}

type Controller struct {
	cfg     Config
	dialer  transport.Dialer
	creds   Credentials
	onFrame func([]byte)
	after   AfterFunc
	spawn   func(func())
	logger  *slog.Logger

	mu          sync.Mutex
	state       domain.ConnectionState
	attempts    int
	manualClose bool
	generation  uint64
	conn        transport.Conn
	timer       Timer
	identifyID  string
	listeners   []StateListener
	pending     []transition
	delivering  bool
}

func NewController(opts Options) *Controller {
	opts.Config.defaults()
	c := &Controller{
		cfg:     opts.Config,
		dialer:  opts.Dialer,
		creds:   opts.Credentials,
		onFrame: opts.OnFrame,
		after:   opts.AfterFunc,
		spawn:   opts.Go,
		logger:  opts.Logger,
		state:   domain.Disconnected,
	}
	if c.after == nil {
		c.after = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if c.spawn == nil {
		c.spawn = func(f func()) { go f() }
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.creds == nil {
		c.creds = func() (string, int64) { return "", 0 }
	}
	return c
}

func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Controller) OnStateChange(l StateListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Connect starts a connection if none is active. It is a silent no-op when
// credentials are missing, when already connecting or connected, and in the
// FAILED state, which only Reconnect leaves.
func (c *Controller) Connect() {
	c.mu.Lock()
	var start func()
	if c.state == domain.Disconnected {
		c.manualClose = false
		start = c.beginAttemptLocked()
	}
	c.unlock()
	c.run(start)
}

// Reconnect resets the attempt counter and resolves credentials again.
func (c *Controller) Reconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.manualClose = false
	c.attempts = 0
	c.generation++
	old := c.conn
	c.conn = nil
	c.setStateLocked(domain.Disconnected)
	start := c.beginAttemptLocked()
	c.unlock()
	if old != nil {
		_ = old.Close()
	}
	c.run(start)
}

// Disconnect closes the connection on purpose: any scheduled retry is
// cancelled and no automatic reconnection happens until Connect or
// Reconnect is called.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.stopTimerLocked()
	c.generation++
	old := c.conn
	c.conn = nil
	c.setStateLocked(domain.Disconnected)
	c.unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Debug("close connection", slog.Any("error", err))
		}
	}
}

func (c *Controller) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == domain.Connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return domain.ErrNotConnected
	}
	return conn.Send(frame)
}

func (c *Controller) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *Controller) beginAttemptLocked() func() {
	token, userID := c.creds()
	if token == "" || userID == 0 {
		c.logger.Debug("connect skipped: credentials not available")
		c.setStateLocked(domain.Disconnected)
		return nil
	}
	c.generation++
	gen := c.generation
	c.setStateLocked(domain.Connecting)
	return func() { c.dial(gen, token, userID) }
}

func (c *Controller) dial(gen uint64, token string, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	conn, err := c.dialer.Dial(ctx, c.cfg.Endpoint, token, transport.Handlers{
		OnFrame: func(frame []byte) {
			if c.isCurrent(gen) && c.onFrame != nil {
				c.onFrame(frame)
			}
		},
		OnClose: func(err error) { c.handleClose(gen, err) },
	})
	cancel()
	if err != nil {
		c.handleDialFailure(gen, err)
		return
	}

	identify := domain.NewFrame(domain.FrameIdentify)
	identify.RequestID = uuid.NewString()
	identify.Payload = domain.IdentifyPayload{Token: token, UserID: userID}
	c.mu.Lock()
	if gen == c.generation {
		c.identifyID = identify.RequestID
	}
	c.mu.Unlock()
	data, err := json.Marshal(identify)
	if err == nil {
		err = conn.Send(data)
	}
	if err != nil {
		_ = conn.Close()
		c.handleDialFailure(gen, fmt.Errorf("send identify: %w", err))
		return
	}

	c.mu.Lock()
	if gen != c.generation || c.manualClose || c.state != domain.Connecting {
		c.unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(domain.Connected)
	c.unlock()
	c.logger.Info("chat socket connected", slog.Int64("user_id", userID))
}

// RejectIdentity acts on a server error answering the identify frame of the
// live connection: the socket is closed and the state becomes FAILED, which
// only Reconnect leaves. Errors answering any other request are ignored.
func (c *Controller) RejectIdentity(requestID string) bool {
	c.mu.Lock()
	if requestID == "" || requestID != c.identifyID ||
		(c.state != domain.Connected && c.state != domain.Connecting) {
		c.unlock()
		return false
	}
	c.stopTimerLocked()
	c.generation++
	c.identifyID = ""
	old := c.conn
	c.conn = nil
	c.setStateLocked(domain.Failed)
	c.unlock()
	c.logger.Error("chat socket identify rejected")
	if old != nil {
		_ = old.Close()
	}
	return true
}

func (c *Controller) handleDialFailure(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || c.state != domain.Connecting {
		c.unlock()
		return
	}
	if errors.Is(err, domain.ErrInvalidEndpoint) {
		c.logger.Error("chat socket endpoint rejected", slog.Any("error", err))
		c.setStateLocked(domain.Failed)
		c.unlock()
		return
	}
	c.logger.Warn("chat socket connect failed", slog.Any("error", err), slog.Int("attempt", c.attempts))
	c.scheduleRetryLocked()
	c.unlock()
}

func (c *Controller) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || (c.state != domain.Connected && c.state != domain.Connecting) {
		c.unlock()
		return
	}
	c.conn = nil
	c.logger.Warn("chat socket closed", slog.Any("error", err))
	c.scheduleRetryLocked()
	c.unlock()
}

func (c *Controller) scheduleRetryLocked() {
	if c.manualClose {
		c.setStateLocked(domain.Disconnected)
		return
	}
	c.attempts++
	if c.attempts > c.cfg.MaxAttempts {
		c.logger.Error("chat socket giving up", slog.Int("attempts", c.attempts-1))
		c.setStateLocked(domain.Failed)
		return
	}
	delay := Backoff(c.attempts, c.cfg.BaseDelay, c.cfg.MaxDelay)
	c.setStateLocked(domain.Reconnecting)
	gen := c.generation
	c.timer = c.after(delay, func() { c.retry(gen) })
	c.logger.Info("chat socket reconnect scheduled", slog.Int("attempt", c.attempts), slog.Duration("delay", delay))
}

func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.manualClose || c.state != domain.Reconnecting {
		c.unlock()
		return
	}
	c.timer = nil
	start := c.beginAttemptLocked()
	c.unlock()
	c.run(start)
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) setStateLocked(s domain.ConnectionState) {
	if c.state == s {
		return
	}
	c.pending = append(c.pending, transition{old: c.state, new: s})
	c.state = s
}

// unlock releases mu and then delivers queued transitions, so listeners may
// call back into the controller. Only one goroutine delivers at a time;
// transitions queued meanwhile are delivered by it, in order.
func (c *Controller) unlock() {
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		listeners := append([]StateListener(nil), c.listeners...)
		c.mu.Unlock()
		for _, t := range batch {
			for _, l := range listeners {
				l(t.old, t.new)
			}
		}
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

func (c *Controller) run(start func()) {
	if start != nil {
		c.spawn(start)
	}
}
