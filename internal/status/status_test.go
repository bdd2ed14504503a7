package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, s *domain.PlayerStatus)
	}{
		{
			name:  "Full Object",
			input: `{"isPlaying":true,"title":"Song A","artist":"Band B","albumArt":"https://x/a.jpg","currentTime":30.5,"duration":200}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.True(t, s.IsPlaying)
				assert.Equal(t, "Song A", s.Title)
				assert.Equal(t, "Band B", s.Artist)
				assert.Equal(t, "https://x/a.jpg", s.AlbumArt)
				require.NotNil(t, s.CurrentTime)
				assert.InDelta(t, 30.5, *s.CurrentTime, 1e-9)
				require.NotNil(t, s.Duration)
				assert.InDelta(t, 200, *s.Duration, 1e-9)
			},
		},
		{
			name:  "Null Document",
			input: `null`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				assert.Nil(t, s)
			},
		},
		{
			name:  "Empty Body",
			input: "  \n",
			check: func(t *testing.T, s *domain.PlayerStatus) {
				assert.Nil(t, s)
			},
		},
		{
			name:  "Non-numeric Timing",
			input: `{"isPlaying":true,"title":"Song","currentTime":"30","duration":null}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.Nil(t, s.CurrentTime)
				assert.Nil(t, s.Duration)
			},
		},
		{
			name:  "Wrong Text Types",
			input: `{"isPlaying":1,"title":42,"artist":["A","B"],"albumArt":false}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.True(t, s.IsPlaying)
				assert.Empty(t, s.Title)
				assert.Empty(t, s.Artist)
				assert.Empty(t, s.AlbumArt)
			},
		},
		{
			name:  "Out Of Range Number",
			input: `{"isPlaying":true,"title":"A","currentTime":12,"duration":1e400}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.True(t, s.IsPlaying)
				assert.Equal(t, "A", s.Title)
				require.NotNil(t, s.CurrentTime)
				assert.InDelta(t, 12, *s.CurrentTime, 1e-9)
				assert.Nil(t, s.Duration, "only the unparseable field is blanked")
			},
		},
		{
			name:  "Huge isPlaying",
			input: `{"isPlaying":1e400,"title":"A"}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.True(t, s.IsPlaying)
			},
		},
		{
			name:  "Zero isPlaying",
			input: `{"isPlaying":0,"title":"A"}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.False(t, s.IsPlaying)
			},
		},
		{
			name:  "Missing isPlaying",
			input: `{"title":"Song"}`,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.False(t, s.IsPlaying)
			},
		},
	}

	// Documents that are not objects carry no fields: present but idle
	for _, input := range []string{`"x"`, `[]`, `[{"isPlaying":true}]`, `42`, `true`} {
		tests = append(tests, struct {
			name  string
			input string
			check func(t *testing.T, s *domain.PlayerStatus)
		}{
			name:  "Non-object " + input,
			input: input,
			check: func(t *testing.T, s *domain.PlayerStatus) {
				require.NotNil(t, s)
				assert.False(t, s.IsPlaying)
				assert.Empty(t, s.Title)
				assert.Nil(t, s.CurrentTime)
				assert.Nil(t, s.Duration)
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	for _, input := range []string{`{"isPlaying":`, `x`, `{} {}`, `{"title":"A"} trailing`} {
		_, err := Decode([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy(true))
	assert.True(t, truthy("yes"))
	assert.True(t, truthy(float64(2)))
	assert.True(t, truthy(json.Number("-1.5")))
	assert.False(t, truthy(json.Number("0")))
	assert.False(t, truthy(json.Number("1e-400")))
	assert.True(t, truthy(map[string]any{}))
	assert.False(t, truthy(false))
	assert.False(t, truthy(""))
	assert.False(t, truthy(float64(0)))
	assert.False(t, truthy(nil))
}

func TestStore_Current(t *testing.T) {
	base := time.Unix(1_000, 0)
	clock := base
	store := NewStore()
	store.now = func() time.Time { return clock }

	assert.Nil(t, store.Current(), "empty store reports no status")

	pos, dur := 10.0, 60.0
	store.Set("firefox", &domain.PlayerStatus{IsPlaying: true, Title: "Song", CurrentTime: &pos, Duration: &dur})

	clock = base.Add(5 * time.Second)
	got := store.Current()
	require.NotNil(t, got)
	require.NotNil(t, got.CurrentTime)
	assert.InDelta(t, 15.0, *got.CurrentTime, 1e-9)

	clock = base.Add(5 * time.Minute)
	got = store.Current()
	assert.InDelta(t, 60.0, *got.CurrentTime, 1e-9, "position is clamped to the duration")

	// The stored snapshot is not modified by reads or by the caller's input
	pos = 999
	assert.InDelta(t, 60.0, *store.Current().CurrentTime, 1e-9)
}

func TestStore_PausedDoesNotAdvance(t *testing.T) {
	base := time.Unix(1_000, 0)
	clock := base
	store := NewStore()
	store.now = func() time.Time { return clock }

	pos := 42.0
	store.Set("firefox", &domain.PlayerStatus{IsPlaying: false, Title: "Song", CurrentTime: &pos})

	clock = base.Add(time.Minute)
	assert.InDelta(t, 42.0, *store.Current().CurrentTime, 1e-9)
}

func TestStore_SetNil(t *testing.T) {
	store := NewStore()
	store.Set("firefox", &domain.PlayerStatus{IsPlaying: true, Title: "Song"})
	store.Set("firefox", nil)

	assert.Nil(t, store.StatusFunc()())
}

func TestStore_Sources(t *testing.T) {
	tests := []struct {
		name    string
		updates []domain.StatusUpdate
		want    string // Expected title, empty for no status
	}{
		{
			name: "Other Source Gone",
			updates: []domain.StatusUpdate{
				{Source: "firefox", Status: &domain.PlayerStatus{IsPlaying: true, Title: "RF Song"}},
				{Source: "vlc"},
			},
			want: "RF Song",
		},
		{
			name: "Own Source Gone",
			updates: []domain.StatusUpdate{
				{Source: "chromium", Status: &domain.PlayerStatus{IsPlaying: true, Title: "Other"}},
				{Source: "firefox", Status: &domain.PlayerStatus{IsPlaying: true, Title: "RF Song"}},
				{Source: "firefox"},
			},
			want: "Other",
		},
		{
			name: "Playing Beats Newer Paused",
			updates: []domain.StatusUpdate{
				{Source: "firefox", Status: &domain.PlayerStatus{IsPlaying: true, Title: "RF Song"}},
				{Source: "chromium", Status: &domain.PlayerStatus{IsPlaying: false, Title: "Paused"}},
			},
			want: "RF Song",
		},
		{
			name: "Most Recent Playing Wins",
			updates: []domain.StatusUpdate{
				{Source: "firefox", Status: &domain.PlayerStatus{IsPlaying: true, Title: "First"}},
				{Source: "chromium", Status: &domain.PlayerStatus{IsPlaying: true, Title: "Second"}},
			},
			want: "Second",
		},
		{
			name: "Paused When Nothing Plays",
			updates: []domain.StatusUpdate{
				{Source: "firefox", Status: &domain.PlayerStatus{IsPlaying: false, Title: "Paused"}},
			},
			want: "Paused",
		},
		{
			name: "All Gone",
			updates: []domain.StatusUpdate{
				{Source: "firefox", Status: &domain.PlayerStatus{IsPlaying: true, Title: "RF Song"}},
				{Source: "firefox"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			for _, u := range tt.updates {
				store.Set(u.Source, u.Status)
			}

			got := store.Current()
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Title)
		})
	}
}
