package domain

// PlayerStatus mirrors the status object the RF Music page publishes.
// Empty strings and nil pointers mean the field was absent or malformed.
type PlayerStatus struct {
	// IsPlaying is true while the page's player is producing audio
	IsPlaying bool
	// Title of the current track, "Nothing playing" when no media is loaded
	Title string
	// Artist name
	Artist string
	// AlbumArt is the URL of the artwork
	AlbumArt string
	// CurrentTime is the playback position in seconds
	CurrentTime *float64
	// Duration of the track in seconds
	Duration *float64
}

// Clone returns a deep copy so callers can adjust positions without
// touching shared snapshots.
func (s *PlayerStatus) Clone() *PlayerStatus {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentTime != nil {
		v := *s.CurrentTime
		c.CurrentTime = &v
	}
	if s.Duration != nil {
		v := *s.Duration
		c.Duration = &v
	}
	return &c
}

// StatusUpdate is emitted by a Monitor whenever its view of the player changes.
type StatusUpdate struct {
	// Source names the emitting monitor (e.g. the MPRIS bus name)
	Source string
	// Status is nil when the player disappeared
	Status *PlayerStatus
}

// ActivityType is the Discord activity type code
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityStreaming ActivityType = 1
	// ActivityListening renders as "Listening to ..."
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
)

// MaxButtons is the number of buttons Discord renders on an activity
const MaxButtons = 2

// MaxTextLength is the limit Discord enforces on activity text fields
const MaxTextLength = 128

// Button is a link rendered below the activity
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// PresencePayload is the activity handed to the presence client.
// It is built fresh for every update and never stored.
type PresencePayload struct {
	Details        string       `json:"details"`
	State          string       `json:"state"`
	Type           ActivityType `json:"type"`
	LargeImageKey  string       `json:"largeImageKey,omitempty"`
	LargeImageText string       `json:"largeImageText,omitempty"`
	SmallImageKey  string       `json:"smallImageKey,omitempty"`
	SmallImageText string       `json:"smallImageText,omitempty"`
	// StartTimestamp and EndTimestamp are epoch seconds
	StartTimestamp *int64   `json:"startTimestamp,omitempty"`
	EndTimestamp   *int64   `json:"endTimestamp,omitempty"`
	Buttons        []Button `json:"buttons,omitempty"`
}

// HasTimestamps reports whether the payload carries a progress bar
func (p PresencePayload) HasTimestamps() bool {
	return p.StartTimestamp != nil && p.EndTimestamp != nil
}
