//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// ipcDirs lists the directories Discord may place its socket in,
// including the Flatpak and Snap sandboxes
func ipcDirs() []string {
	var bases []string
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			bases = append(bases, v)
		}
	}
	bases = append(bases, "/tmp")

	dirs := make([]string, 0, len(bases)*3)
	for _, b := range bases {
		dirs = append(dirs, b, filepath.Join(b, "app", "com.discordapp.Discord"), filepath.Join(b, "snap.discord"))
	}
	return dirs
}

// dialIPC connects to the first discord-ipc-N socket that accepts
func dialIPC(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	for _, dir := range ipcDirs() {
		for i := 0; i < 10; i++ {
			path := filepath.Join(dir, fmt.Sprintf("discord-ipc-%d", i))
			if _, err := os.Stat(path); err != nil {
				continue
			}
			conn, err := d.DialContext(ctx, "unix", path)
			if err == nil {
				return conn, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no discord-ipc socket found", ErrNotConnected)
}
