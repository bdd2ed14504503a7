package presence

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/genricoloni/rfpresence/internal/domain"
	"go.uber.org/zap"
)

// recordingClient captures every payload handed to SetActivity
type recordingClient struct {
	handler  domain.UpdateHandler
	payloads []*domain.PresencePayload
	err      error
}

func (c *recordingClient) OnUpdate(h domain.UpdateHandler) { c.handler = h }

func (c *recordingClient) SetActivity(_ context.Context, p *domain.PresencePayload) error {
	c.payloads = append(c.payloads, p)
	return c.err
}

func f64(v float64) *float64 { return &v }

func newTestMapper(status *domain.PlayerStatus) (*StatusMapper, *recordingClient) {
	client := &recordingClient{}
	m := NewStatusMapper(zap.NewNop(), func() *domain.PlayerStatus { return status }, client, DefaultProfile())
	return m, client
}

// TestMap_Scenario checks the canonical example: a track 30s into a 200s song.
func TestMap_Scenario(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	status := &domain.PlayerStatus{
		IsPlaying:   true,
		Title:       "Song A",
		Artist:      "Band B",
		CurrentTime: f64(30),
		Duration:    f64(200),
	}

	m, _ := newTestMapper(status)
	p := m.Map(status, now)

	if p.Details != "Song A" {
		t.Errorf("Details: expected 'Song A', got '%s'", p.Details)
	}
	if p.State != "by Band B" {
		t.Errorf("State: expected 'by Band B', got '%s'", p.State)
	}
	if p.Type != domain.ActivityListening {
		t.Errorf("Type: expected listening, got %d", p.Type)
	}
	if !p.HasTimestamps() {
		t.Fatal("expected timestamps")
	}
	if *p.StartTimestamp != now.Unix()-30 {
		t.Errorf("StartTimestamp: expected %d, got %d", now.Unix()-30, *p.StartTimestamp)
	}
	if *p.EndTimestamp != now.Unix()+170 {
		t.Errorf("EndTimestamp: expected %d, got %d", now.Unix()+170, *p.EndTimestamp)
	}
	if p.LargeImageKey != "rf_logo_main" || p.LargeImageText != "RF Music" {
		t.Errorf("expected default logo, got %s/%s", p.LargeImageKey, p.LargeImageText)
	}
	if p.SmallImageKey != "rf_icon_listening" || p.SmallImageText != "RF Productions Music" {
		t.Errorf("unexpected small image %s/%s", p.SmallImageKey, p.SmallImageText)
	}
	if len(p.Buttons) != 1 || p.Buttons[0].URL != "https://rfproductionshq.com/radio" {
		t.Errorf("unexpected buttons: %+v", p.Buttons)
	}
}

func TestMap_IdlePayload(t *testing.T) {
	tests := []struct {
		name   string
		status *domain.PlayerStatus
	}{
		{name: "Absent Status", status: nil},
		{name: "Not Playing", status: &domain.PlayerStatus{IsPlaying: false, Title: "Song A", Artist: "Band B", AlbumArt: "https://x/a.jpg", CurrentTime: f64(3), Duration: f64(100)}},
		{name: "Sentinel Title", status: &domain.PlayerStatus{IsPlaying: true, Title: SentinelTitle}},
		{name: "Empty Title", status: &domain.PlayerStatus{IsPlaying: true, Artist: "Band B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMapper(tt.status)
			p := m.Map(tt.status, time.Now())

			if p.Details != "Browse RF Music" {
				t.Errorf("Details: got '%s'", p.Details)
			}
			if p.State != "Discovering new sounds..." {
				t.Errorf("State: got '%s'", p.State)
			}
			if p.LargeImageKey != "rf_logo_main" || p.LargeImageText != "RF Productions Music" {
				t.Errorf("unexpected large image %s/%s", p.LargeImageKey, p.LargeImageText)
			}
			if p.Type != domain.ActivityListening {
				t.Errorf("Type: got %d", p.Type)
			}
			if p.StartTimestamp != nil || p.EndTimestamp != nil {
				t.Error("idle payload must not carry timestamps")
			}
			if len(p.Buttons) != 0 {
				t.Errorf("idle payload must not carry buttons, got %d", len(p.Buttons))
			}
			if p.SmallImageKey != "" {
				t.Errorf("idle payload must not carry a small image, got %s", p.SmallImageKey)
			}
		})
	}
}

func TestMap_Artist(t *testing.T) {
	tests := []struct {
		name          string
		artist        string
		expectedState string
	}{
		{name: "Missing Artist", artist: "", expectedState: "On RF Music"},
		{name: "Present Artist", artist: "Band B", expectedState: "by Band B"},
		{name: "Long Artist", artist: strings.Repeat("x", 200), expectedState: "by " + strings.Repeat("x", 125)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &domain.PlayerStatus{IsPlaying: true, Title: "Song", Artist: tt.artist}
			m, _ := newTestMapper(status)
			p := m.Map(status, time.Now())

			if p.State != tt.expectedState {
				t.Errorf("State: expected '%s', got '%s'", tt.expectedState, p.State)
			}
		})
	}
}

func TestMap_Artwork(t *testing.T) {
	status := &domain.PlayerStatus{IsPlaying: true, Title: "Song A", Artist: "Band B", AlbumArt: "https://cdn.example.com/a.jpg"}
	m, _ := newTestMapper(status)
	p := m.Map(status, time.Now())

	if p.LargeImageKey != "https://cdn.example.com/a.jpg" {
		t.Errorf("LargeImageKey: got '%s'", p.LargeImageKey)
	}
	if p.LargeImageText != "Song A - Band B" {
		t.Errorf("LargeImageText: got '%s'", p.LargeImageText)
	}
	if p.SmallImageKey != "rf_icon_listening" {
		t.Errorf("SmallImageKey: got '%s'", p.SmallImageKey)
	}
}

func TestMap_TitleTruncation(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  int
	}{
		{name: "ASCII", title: strings.Repeat("a", 300), want: 128},
		{name: "Multibyte", title: strings.Repeat("é", 200), want: 128},
		{name: "Short", title: "abc", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &domain.PlayerStatus{IsPlaying: true, Title: tt.title, AlbumArt: "https://x/a.jpg"}
			m, _ := newTestMapper(status)
			p := m.Map(status, time.Now())

			if got := utf8.RuneCountInString(p.Details); got != tt.want {
				t.Errorf("Details length: expected %d, got %d", tt.want, got)
			}
			if !strings.HasPrefix(tt.title, p.Details) {
				t.Error("Details must be a prefix of the title")
			}
			if utf8.RuneCountInString(p.LargeImageText) > domain.MaxTextLength {
				t.Error("LargeImageText exceeds the text limit")
			}
		})
	}
}

func TestMap_Timestamps(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tests := []struct {
		name        string
		currentTime *float64
		duration    *float64
		expectStart int64
		expectEnd   int64
		expectNone  bool
	}{
		{name: "Fractional Values Are Floored", currentTime: f64(12.9), duration: f64(180.7), expectStart: 1_000_000 - 12, expectEnd: 1_000_000 - 12 + 180},
		{name: "Start Of Track", currentTime: f64(0), duration: f64(60), expectStart: 1_000_000, expectEnd: 1_000_060},
		{name: "Zero Duration", currentTime: f64(5), duration: f64(0), expectNone: true},
		{name: "Negative Duration", currentTime: f64(5), duration: f64(-1), expectNone: true},
		{name: "Missing Position", duration: f64(100), expectNone: true},
		{name: "Missing Duration", currentTime: f64(5), expectNone: true},
		{name: "Infinite Duration (Live Stream)", currentTime: f64(5), duration: f64(math.Inf(1)), expectNone: true},
		{name: "NaN Position", currentTime: f64(math.NaN()), duration: f64(100), expectNone: true},
		{name: "Huge Duration", currentTime: f64(5), duration: f64(1e19), expectNone: true},
		{name: "Huge Negative Position", currentTime: f64(-1e19), duration: f64(100), expectNone: true},
		{name: "Largest Accepted Duration", currentTime: f64(0), duration: f64(1e12), expectStart: 1_000_000, expectEnd: 1_000_000 + 1e12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &domain.PlayerStatus{IsPlaying: true, Title: "Song", CurrentTime: tt.currentTime, Duration: tt.duration}
			m, _ := newTestMapper(status)
			p := m.Map(status, now)

			if tt.expectNone {
				if p.StartTimestamp != nil || p.EndTimestamp != nil {
					t.Error("expected no timestamps")
				}
				return
			}
			if !p.HasTimestamps() {
				t.Fatal("expected timestamps")
			}
			if *p.StartTimestamp != tt.expectStart {
				t.Errorf("StartTimestamp: expected %d, got %d", tt.expectStart, *p.StartTimestamp)
			}
			if *p.EndTimestamp != tt.expectEnd {
				t.Errorf("EndTimestamp: expected %d, got %d", tt.expectEnd, *p.EndTimestamp)
			}
		})
	}
}

// TestUpdate_CallsSetActivityOnce verifies the callback path through Register.
func TestUpdate_CallsSetActivityOnce(t *testing.T) {
	status := &domain.PlayerStatus{IsPlaying: true, Title: "Song A", Artist: "Band B"}
	m, client := newTestMapper(status)
	m.Register()

	if client.handler == nil {
		t.Fatal("mapper did not register an update handler")
	}

	client.handler(context.Background())

	if len(client.payloads) != 1 {
		t.Fatalf("expected exactly one SetActivity call, got %d", len(client.payloads))
	}
	if client.payloads[0] == nil || client.payloads[0].Details != "Song A" {
		t.Errorf("unexpected payload: %+v", client.payloads[0])
	}
}

// TestUpdate_ClientErrorIsSwallowed ensures a failing client does not panic or retry.
func TestUpdate_ClientErrorIsSwallowed(t *testing.T) {
	m, client := newTestMapper(nil)
	client.err = errors.New("pipe closed")

	m.Update(context.Background())

	if len(client.payloads) != 1 {
		t.Fatalf("expected one attempt, got %d", len(client.payloads))
	}
	if client.payloads[0].Details != "Browse RF Music" {
		t.Errorf("expected idle payload, got '%s'", client.payloads[0].Details)
	}
}

func TestUpdate_UsesInjectedClock(t *testing.T) {
	status := &domain.PlayerStatus{IsPlaying: true, Title: "Song", CurrentTime: f64(10), Duration: f64(20)}
	m, client := newTestMapper(status)
	m.now = func() time.Time { return time.Unix(500, 0) }

	m.Update(context.Background())

	p := client.payloads[0]
	if *p.StartTimestamp != 490 || *p.EndTimestamp != 510 {
		t.Errorf("expected 490..510, got %d..%d", *p.StartTimestamp, *p.EndTimestamp)
	}
}

func TestProfile_ButtonsCapped(t *testing.T) {
	profile := DefaultProfile()
	profile.Buttons = []ButtonConfig{
		{Label: "One", URL: "https://one"},
		{Label: "Two", URL: "https://two"},
		{Label: "Three", URL: "https://three"},
	}

	status := &domain.PlayerStatus{IsPlaying: true, Title: "Song"}
	m := NewStatusMapper(zap.NewNop(), func() *domain.PlayerStatus { return status }, &recordingClient{}, profile)
	p := m.Map(status, time.Now())

	if len(p.Buttons) != domain.MaxButtons {
		t.Errorf("expected %d buttons, got %d", domain.MaxButtons, len(p.Buttons))
	}
}
