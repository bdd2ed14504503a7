package discord

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when no Discord client could be reached
	ErrNotConnected = errors.New("discord is not connected")
	// ErrClosed is returned when Discord closed the IPC connection
	ErrClosed = errors.New("discord closed the connection")
)

// RPCError is an ERROR event or close frame sent back by Discord
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("discord rpc error %d: %s", e.Code, e.Message)
}
