package chat

import "errors"

var ErrUnknownRoom = errors.New("room not joined")
