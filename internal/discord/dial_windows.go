//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"
)

// dialIPC is not implemented for Windows yet
func dialIPC(ctx context.Context) (net.Conn, error) {
	// TODO: dial \\.\pipe\discord-ipc-N through a named pipe client
	return nil, fmt.Errorf("%w: named pipes are not supported yet", ErrNotConnected)
}
