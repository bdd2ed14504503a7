package presence

import (
	"context"
	"math"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"go.uber.org/zap"
)

// StatusMapper turns the page's player status into a presence payload.
// It holds no state between invocations.
type StatusMapper struct {
	logger  *zap.Logger
	status  domain.StatusFunc
	client  domain.PresenceClient
	profile Profile
	now     func() time.Time
}

// NewStatusMapper creates a mapper reading status through the given accessor
func NewStatusMapper(logger *zap.Logger, status domain.StatusFunc, client domain.PresenceClient, profile Profile) *StatusMapper {
	return &StatusMapper{
		logger:  logger,
		status:  status,
		client:  client,
		profile: profile,
		now:     time.Now,
	}
}

// Register subscribes the mapper to the client's update requests
func (m *StatusMapper) Register() {
	m.client.OnUpdate(m.Update)
}

// Update reads the current status and publishes exactly one payload.
// Failures are logged and dropped; the next update supersedes this one.
func (m *StatusMapper) Update(ctx context.Context) {
	payload := m.Map(m.status(), m.now())

	if err := m.client.SetActivity(ctx, &payload); err != nil {
		m.logger.Warn("Failed to set activity",
			zap.String("details", payload.Details),
			zap.Error(err))
		return
	}

	m.logger.Debug("Activity updated",
		zap.String("details", payload.Details),
		zap.String("state", payload.State),
		zap.Bool("timestamps", payload.HasTimestamps()))
}

// Map builds the payload for status at wall-clock time now
func (m *StatusMapper) Map(status *domain.PlayerStatus, now time.Time) domain.PresencePayload {
	if !isNowPlaying(status) {
		return m.idle()
	}

	p := m.profile
	// TODO: switch to a paused icon once the page reports pause separately from stop
	payload := domain.PresencePayload{
		Details:        truncate(status.Title),
		State:          truncate(p.ArtistFallback),
		Type:           domain.ActivityListening,
		LargeImageKey:  p.LogoKey,
		LargeImageText: p.LogoText,
		SmallImageKey:  p.ListeningIcon,
		SmallImageText: truncate(p.ListeningText),
		Buttons:        p.buttons(),
	}

	if status.Artist != "" {
		payload.State = truncate("by " + status.Artist)
	}

	if status.AlbumArt != "" {
		payload.LargeImageKey = status.AlbumArt
		payload.LargeImageText = truncate(status.Title + " - " + status.Artist)
	} else {
		payload.LargeImageText = truncate(payload.LargeImageText)
	}

	if start, end, ok := timestamps(status, now); ok {
		payload.StartTimestamp = &start
		payload.EndTimestamp = &end
	}

	return payload
}

// idle is the generic payload shown when nothing is playing
func (m *StatusMapper) idle() domain.PresencePayload {
	p := m.profile
	return domain.PresencePayload{
		Details:        truncate(p.IdleDetails),
		State:          truncate(p.IdleState),
		Type:           domain.ActivityListening,
		LargeImageKey:  p.LogoKey,
		LargeImageText: truncate(p.IdleLogoText),
	}
}

func isNowPlaying(status *domain.PlayerStatus) bool {
	return status != nil &&
		status.IsPlaying &&
		status.Title != "" &&
		status.Title != SentinelTitle
}

// timestamps derives a progress bar assuming playback continues from now.
// Both fields must be known and the duration positive.
func timestamps(status *domain.PlayerStatus, now time.Time) (start, end int64, ok bool) {
	if status.CurrentTime == nil || status.Duration == nil {
		return 0, 0, false
	}
	position, duration := *status.CurrentTime, *status.Duration
	if !inRange(position) || !inRange(duration) || duration <= 0 {
		return 0, 0, false
	}

	start = now.Unix() - int64(math.Floor(position))
	end = start + int64(math.Floor(duration))
	return start, end, true
}

// maxSeconds bounds usable positions and durations so epoch arithmetic,
// including the conversion to milliseconds, cannot overflow int64
const maxSeconds = 1e12

// inRange reports whether f is finite and within ±maxSeconds
func inRange(f float64) bool {
	return !math.IsNaN(f) && math.Abs(f) <= maxSeconds
}

// truncate cuts s to domain.MaxTextLength characters
func truncate(s string) string {
	if len(s) <= domain.MaxTextLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= domain.MaxTextLength {
		return s
	}
	return string(runes[:domain.MaxTextLength])
}
