package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrNotConnected           = errors.New("not connected")
	ErrNoRoomSelected         = errors.New("no room selected")
	ErrInvalidEndpoint        = errors.New("invalid endpoint")
)

// APIError carries an application error reported by the chat server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.Status)
	}
	return e.Message
}
