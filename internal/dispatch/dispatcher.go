// Package dispatch turns inbound socket frames into typed events and routes
// them to state handlers.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"majlis-chat/internal/domain"
)

type Handler interface {
	HandleMessage(msg domain.Message)
	HandleTyping(ind domain.TypingIndicator)
	HandleMembership(m domain.Membership, joined bool)
	HandleRoomUpdated(room domain.Room)
	HandleUserStatus(st domain.UserStatus)
}

type Dispatcher struct {
	handler Handler
	logger  *slog.Logger

	mu        sync.RWMutex
	observers []func(Event)
}

func NewDispatcher(handler Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handler: handler, logger: logger}
}

// OnEvent registers fn to see every routed event after its handler ran.
func (d *Dispatcher) OnEvent(fn func(Event)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// HandleFrame never fails: malformed and unknown frames are logged and
// dropped so one bad frame cannot take the connection down.
func (d *Dispatcher) HandleFrame(frame []byte) {
	ev, err := Decode(frame)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrUnrecognized) {
			level = slog.LevelDebug
		}
		d.logger.Log(context.Background(), level, "dropping inbound frame", slog.Any("error", err), slog.Int("bytes", len(frame)))
		return
	}
	d.Dispatch(ev)
}

func (d *Dispatcher) Dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered from panic in event handler", slog.String("kind", ev.Kind()), slog.Any("panic", r))
		}
	}()

	switch e := ev.(type) {
	case MessageEvent:
		d.handler.HandleMessage(e.Message)
	case TypingEvent:
		d.handler.HandleTyping(e.Indicator)
	case MembershipEvent:
		d.handler.HandleMembership(e.Membership, e.Joined)
	case RoomUpdatedEvent:
		d.handler.HandleRoomUpdated(e.Room)
	case UserStatusEvent:
		d.handler.HandleUserStatus(e.Status)
	case ControlEvent:
		d.logger.Debug("control frame", slog.String("type", e.Type))
	default:
		d.logger.Debug("unhandled event", slog.String("kind", ev.Kind()))
		return
	}

	d.mu.RLock()
	observers := append([]func(Event){}, d.observers...)
	d.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}
