//go:build linux
// +build linux

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"

	propMetadata = playerInterface + ".Metadata"
	propStatus   = playerInterface + ".PlaybackStatus"
	propPosition = playerInterface + ".Position"
)

// MprisMonitor follows the browser's media session through the D-Bus MPRIS interface
type MprisMonitor struct {
	logger          *zap.Logger
	filters         []string // Lowercased substrings of accepted well-known names, empty for any
	events          chan domain.StatusUpdate
	mu              sync.RWMutex
	running         bool
	cancel          context.CancelFunc
	conn            DBusClient        // Interface for testability
	lastDropWarning time.Time         // Rate limiting for "channel full" warnings
	wg              sync.WaitGroup    // Tracks active producer goroutines
	playerNames     map[string]string // Maps unique bus names (:1.45) to well-known names (org.mpris.MediaPlayer2.firefox.instance_1_23)
}

// NewMprisMonitor creates a new MPRIS monitor instance.
// filter is a comma separated list of substrings matched case-insensitively
// against the player's well-known name; empty accepts every player.
func NewMprisMonitor(logger *zap.Logger, filter string) *MprisMonitor {
	return &MprisMonitor{
		logger:      logger,
		filters:     parseFilter(filter),
		events:      make(chan domain.StatusUpdate, 10),
		playerNames: make(map[string]string),
	}
}

// Start begins monitoring for media events
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor started", zap.Strings("filters", m.filters))

	// Connect to Session Bus (this may block)
	conn, err := NewStdDBusClient()
	if err != nil {
		m.logger.Error("Failed to connect to session bus", zap.Error(err))
		// Reset running state on failure
		m.mu.Lock()
		defer m.mu.Unlock()
		m.running = false
		m.cancel = nil
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// Check if we were stopped while connecting to D-Bus
	select {
	case <-monitorCtx.Done():
		m.logger.Info("Monitor stopped during D-Bus connection")
		if err := conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
		return monitorCtx.Err()
	default:
	}

	// Protect connection assignment with mutex to avoid race with Stop()
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	// Initial detection counts as a producer: Stop() must not close the
	// channel while it is still emitting
	m.wg.Add(1)
	func() {
		defer m.wg.Done()
		if err := m.detectExistingPlayers(); err != nil {
			m.logger.Warn("Failed to detect existing players", zap.Error(err))
		}
	}()

	// Add match rule for PropertiesChanged signals on MPRIS interface
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		m.logger.Error("Failed to add match signal", zap.Error(err))
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	// Seeked is the only way to learn about jumps, Position is not announced
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface(playerInterface),
		dbus.WithMatchMember("Seeked"),
	); err != nil {
		m.logger.Warn("Failed to add Seeked match signal", zap.Error(err))
	}

	// Add match rule for NameOwnerChanged to track new/removed players dynamically
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		// Non-fatal, continue without dynamic tracking
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	} else {
		m.logger.Info("Dynamic player tracking enabled via NameOwnerChanged")
	}

	// Start signal monitoring goroutine
	m.wg.Add(1)
	go m.monitorSignals(monitorCtx)

	// Block until context is cancelled
	<-monitorCtx.Done()

	m.logger.Info("MPRIS monitor stopped")
	return monitorCtx.Err()
}

// Stop gracefully stops the monitor
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()

	if !m.running {
		m.mu.Unlock()
		return nil
	}

	if m.cancel != nil {
		m.cancel()
	}

	m.running = false
	m.mu.Unlock()

	// Wait for all producer goroutines to terminate before closing channel
	// This prevents "send on closed channel" panic
	m.logger.Debug("Waiting for monitoring goroutines to finish")
	m.wg.Wait()

	// Now safe to close the channel
	close(m.events)

	// Close D-Bus connection
	m.mu.Lock()
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
	}
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

// Events returns a read-only channel that emits StatusUpdate
func (m *MprisMonitor) Events() <-chan domain.StatusUpdate {
	return m.events
}

// accepts reports whether a well-known player name passes the filter
func (m *MprisMonitor) accepts(name string) bool {
	if !strings.HasPrefix(name, mprisPrefix) {
		return false
	}
	if len(m.filters) == 0 {
		return true
	}

	lower := strings.ToLower(name)
	for _, f := range m.filters {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// parseFilter splits a comma separated filter, dropping empty entries
func parseFilter(filter string) []string {
	var out []string
	for _, f := range strings.Split(filter, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// detectExistingPlayers queries D-Bus for currently running MPRIS players
func (m *MprisMonitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	// Only MPRIS players (org.mpris.MediaPlayer2.*) that pass the filter
	for _, name := range names {
		if !m.accepts(name) {
			continue
		}
		playerCount++
		m.logger.Info("Detected MPRIS player", zap.String("name", name))

		// Get the unique bus name for this well-known name
		uniqueName, err := m.conn.GetNameOwner(name)
		if err == nil {
			m.mu.Lock()
			m.playerNames[uniqueName] = name
			m.mu.Unlock()
			m.logger.Debug("Mapped player name",
				zap.String("unique", uniqueName),
				zap.String("wellKnown", name))
		}

		// Fetch initial status for this player
		if err := m.fetchPlayerStatus(name); err != nil {
			m.logger.Warn("Failed to fetch initial status",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerStatus retrieves the full status of a player and emits it
func (m *MprisMonitor) fetchPlayerStatus(playerName string) error {
	variant, err := m.conn.GetProperty(playerName, mprisPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// Some players return nil or unexpected types when nothing is loaded
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		m.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", playerName))
		return nil
	}

	statusVariant, err := m.conn.GetProperty(playerName, mprisPath, propStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}

	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}

	// Emit event (non-blocking). Dropping intermediate events during rapid
	// track changes is fine, the engine debounces and keeps the last one.
	st := m.parseStatus(metadata, status, m.queryPosition(playerName))
	m.emit(domain.StatusUpdate{Source: m.getPlayerName(playerName), Status: &st})
	return nil
}

// queryPosition reads the Position property, nil when unavailable
func (m *MprisMonitor) queryPosition(player string) *float64 {
	variant, err := m.conn.GetProperty(player, mprisPath, propPosition)
	if err != nil {
		return nil
	}
	return microsToSeconds(variant.Value())
}

// monitorSignals listens for D-Bus signals and processes them
func (m *MprisMonitor) monitorSignals(ctx context.Context) {
	defer m.wg.Done() // Signal completion when goroutine exits

	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	m.logger.Info("Signal monitoring goroutine started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Signal monitoring goroutine stopped")
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			// Handle different signal types
			switch sig.Name {
			case "org.freedesktop.DBus.NameOwnerChanged":
				m.handleNameOwnerChanged(sig)
			case playerInterface + ".Seeked":
				m.handleSeeked(sig)
			default:
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged processes NameOwnerChanged signals to track player lifecycle
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !m.accepts(name) {
		return // Not an MPRIS player we follow
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case newOwner != "" && oldOwner == "":
		// New player appeared
		m.mu.Lock()
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))

		if err := m.fetchPlayerStatus(name); err != nil {
			m.logger.Warn("Failed to fetch status from new player",
				zap.String("player", name),
				zap.Error(err))
		}

	case newOwner == "" && oldOwner != "":
		// Player disappeared
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.mu.Unlock()

		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))

		// The page went away with its player
		m.emit(domain.StatusUpdate{Source: name})

	case newOwner != "" && oldOwner != "":
		// Ownership transfer (rare), update the mapping
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Debug("MPRIS player ownership changed",
			zap.String("player", name),
			zap.String("oldUnique", oldOwner),
			zap.String("newUnique", newOwner))
	}
}

// handleSeeked re-reads the player after a jump in position
func (m *MprisMonitor) handleSeeked(sig *dbus.Signal) {
	playerName := m.getPlayerName(sig.Sender)
	if len(m.filters) > 0 && !m.accepts(playerName) {
		return
	}

	m.logger.Debug("Received Seeked signal", zap.String("player", playerName))

	if err := m.fetchPlayerStatus(sig.Sender); err != nil {
		m.logger.Warn("Failed to refresh status after seek",
			zap.String("player", playerName),
			zap.Error(err))
	}
}

// handleSignal processes a PropertiesChanged signal
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	// PropertiesChanged signal has 3 arguments:
	// 1. Interface name (string)
	// 2. Changed properties (map[string]Variant)
	// 3. Invalidated properties ([]string)

	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
		return
	}

	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	// Resolve player name from unique bus name; the filter applies to
	// well-known names only
	playerName := m.getPlayerName(sig.Sender)
	if len(m.filters) > 0 && !m.accepts(playerName) {
		m.logger.Debug("Ignoring player outside filter", zap.String("player", playerName))
		return
	}

	m.logger.Debug("Received PropertiesChanged signal",
		zap.String("sender", sig.Sender),
		zap.String("player", playerName),
		zap.Int("properties", len(changedProps)))

	// Check if Metadata or PlaybackStatus changed
	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]

	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	var status string

	if hasMetadata {
		var ok bool
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}

	if hasStatus {
		var ok bool
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	} else {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propStatus)
		if err == nil {
			if s, ok := variant.Value().(string); ok {
				status = s
			}
		}
	}

	// If we only got a status change, fetch metadata
	if !hasMetadata && hasStatus {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propMetadata)
		if err == nil {
			if md, ok := variant.Value().(map[string]dbus.Variant); ok {
				metadata = md
			}
		}
	}

	// Parse and emit
	st := m.parseStatus(metadata, status, m.queryPosition(sig.Sender))
	if m.emit(domain.StatusUpdate{Source: playerName, Status: &st}) {
		m.logger.Info("Media change detected",
			zap.String("player", playerName),
			zap.String("title", st.Title),
			zap.String("artist", st.Artist),
			zap.Bool("playing", st.IsPlaying))
	}
}

// emit sends without blocking.
// A slow consumer must never stall D-Bus signal handling. The engine
// debounces bursts, so dropping intermediate events here is intentional.
func (m *MprisMonitor) emit(update domain.StatusUpdate) bool {
	select {
	case m.events <- update:
		return true
	default:
		m.logChannelFullWarning()
		return false
	}
}

// parseStatus converts MPRIS metadata to the page status shape
func (m *MprisMonitor) parseStatus(metadata map[string]dbus.Variant, status string, position *float64) domain.PlayerStatus {
	st := domain.PlayerStatus{
		IsPlaying:   status == "Playing",
		CurrentTime: position,
	}

	if metadata == nil {
		return st
	}

	// Extract title
	if titleVar, ok := metadata["xesam:title"]; ok {
		if title, ok := titleVar.Value().(string); ok {
			st.Title = title
		}
	}

	// Artist is an array in the spec, a plain string for some players
	if artistVar, ok := metadata["xesam:artist"]; ok {
		switch artists := artistVar.Value().(type) {
		case []string:
			if len(artists) > 0 {
				st.Artist = artists[0]
			}
		case string:
			st.Artist = artists
		default:
			// Some non-compliant players may use unexpected types
			m.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", artistVar.Value())))
		}
	}

	// Browsers cache artwork to file:// URLs which Discord cannot load
	if artVar, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := artVar.Value().(string); ok {
			if strings.HasPrefix(artURL, "https://") || strings.HasPrefix(artURL, "http://") {
				st.AlbumArt = artURL
			} else if artURL != "" {
				m.logger.Debug("Ignoring non-http artUrl", zap.String("artUrl", artURL))
			}
		}
	}

	if lengthVar, ok := metadata["mpris:length"]; ok {
		st.Duration = microsToSeconds(lengthVar.Value())
	}

	return st
}

// getPlayerName returns the well-known player name for a unique bus name
// Falls back to the unique name if no mapping exists
func (m *MprisMonitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if wellKnown, ok := m.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}

// logChannelFullWarning logs a warning about channel being full, rate-limited
// to one message every 5 seconds
func (m *MprisMonitor) logChannelFullWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit to max one warning per 5 seconds
	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(m.lastDropWarning) >= warningInterval {
		m.logger.Warn("Events channel full, dropping status update")
		m.lastDropWarning = now
	}
}

// microsToSeconds converts an MPRIS microsecond value of any integer width
func microsToSeconds(v any) *float64 {
	var us float64
	switch t := v.(type) {
	case int64:
		us = float64(t)
	case uint64:
		us = float64(t)
	case int32:
		us = float64(t)
	case uint32:
		us = float64(t)
	case float64:
		us = t
	default:
		return nil
	}
	s := us / 1e6
	return &s
}
