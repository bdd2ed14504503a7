package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedFetcher returns queued responses, repeating the last one
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []fetchResult
	calls     int
}

type fetchResult struct {
	data []byte
	err  error
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := min(f.calls, len(f.responses)-1)
	f.calls++
	return f.responses[i].data, f.responses[i].err
}

func nextUpdate(t *testing.T, events <-chan domain.StatusUpdate) domain.StatusUpdate {
	t.Helper()
	select {
	case u := <-events:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for status update")
		return domain.StatusUpdate{}
	}
}

func TestHTTPMonitor_EmitsOnChange(t *testing.T) {
	f := &scriptedFetcher{responses: []fetchResult{
		{data: []byte(`{"isPlaying":true,"title":"Song A"}`)},
		{data: []byte(`{"isPlaying":true,"title":"Song A"}`)},
		{err: errors.New("connection refused")},
		{data: []byte(`{"isPlaying":false,"title":"Song A"}`)},
		{data: []byte(`null`)},
	}}

	mon := NewHTTPMonitor(zap.NewNop(), f, "http://localhost:9/status", 5*time.Millisecond)
	go func() { _ = mon.Start(context.Background()) }()

	first := nextUpdate(t, mon.Events())
	require.NotNil(t, first.Status)
	assert.Equal(t, "Song A", first.Status.Title)
	assert.True(t, first.Status.IsPlaying)
	assert.Equal(t, "http://localhost:9/status", first.Source)

	// The duplicate and the failed poll produce nothing
	second := nextUpdate(t, mon.Events())
	require.NotNil(t, second.Status)
	assert.False(t, second.Status.IsPlaying)

	third := nextUpdate(t, mon.Events())
	assert.Nil(t, third.Status)

	require.NoError(t, mon.Stop(context.Background()))

	// Channel is closed after Stop
	for range mon.Events() {
	}
}

func TestHTTPMonitor_AbsentAfterRepeatedFailures(t *testing.T) {
	f := &scriptedFetcher{responses: []fetchResult{
		{data: []byte(`{"isPlaying":true,"title":"Song A"}`)},
		{err: errors.New("connection refused")},
	}}

	mon := NewHTTPMonitor(zap.NewNop(), f, "http://localhost:9/status", 5*time.Millisecond)
	go func() { _ = mon.Start(context.Background()) }()

	first := nextUpdate(t, mon.Events())
	require.NotNil(t, first.Status)
	assert.Equal(t, "Song A", first.Status.Title)

	gone := nextUpdate(t, mon.Events())
	assert.Nil(t, gone.Status, "an unreachable endpoint means the page is gone")

	f.mu.Lock()
	calls := f.calls
	f.mu.Unlock()
	assert.GreaterOrEqual(t, calls, 1+failuresBeforeAbsent)

	require.NoError(t, mon.Stop(context.Background()))

	// Only one absent update despite the ongoing failures
	var rest []domain.StatusUpdate
	for u := range mon.Events() {
		rest = append(rest, u)
	}
	assert.Empty(t, rest)
}

func TestPublish_RetriesDroppedUpdate(t *testing.T) {
	l := &lifecycle{events: make(chan domain.StatusUpdate, 1)}
	logger := zap.NewNop()

	l.publish(logger, "test", []byte(`{"isPlaying":true,"title":"Song A"}`))
	// Channel full: dropped
	l.publish(logger, "test", []byte(`{"isPlaying":true,"title":"Song B"}`))

	assert.Equal(t, "Song A", (<-l.events).Status.Title)

	// The same document read again is delivered this time
	l.publish(logger, "test", []byte(`{"isPlaying":true,"title":"Song B"}`))
	require.Len(t, l.events, 1)
	assert.Equal(t, "Song B", (<-l.events).Status.Title)

	// And then deduplicated
	l.publish(logger, "test", []byte(`{"isPlaying":true,"title":"Song B"}`))
	assert.Empty(t, l.events)
}

func TestHTTPMonitor_StopBeforeStart(t *testing.T) {
	mon := NewHTTPMonitor(zap.NewNop(), &scriptedFetcher{responses: []fetchResult{{}}}, "http://x", time.Second)
	assert.NoError(t, mon.Stop(context.Background()))
}

func TestFileMonitor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"isPlaying":true,"title":"Song A","duration":200,"currentTime":30}`), 0o644))

	mon := NewFileMonitor(zap.NewNop(), path)
	go func() { _ = mon.Start(context.Background()) }()
	defer func() { _ = mon.Stop(context.Background()) }()

	initial := nextUpdate(t, mon.Events())
	require.NotNil(t, initial.Status)
	assert.Equal(t, "Song A", initial.Status.Title)
	require.NotNil(t, initial.Status.Duration)
	assert.InDelta(t, 200, *initial.Status.Duration, 1e-9)

	// Replace atomically like a bridge would
	tmp := filepath.Join(dir, "status.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"isPlaying":true,"title":"Song B"}`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	for {
		u := nextUpdate(t, mon.Events())
		if u.Status != nil && u.Status.Title == "Song B" {
			break
		}
	}

	require.NoError(t, os.Remove(path))
	for {
		u := nextUpdate(t, mon.Events())
		if u.Status == nil {
			break
		}
	}
}

type staticConfig struct {
	source string
}

func (c staticConfig) GetClientID() string                 { return "1" }
func (c staticConfig) GetSource() string                   { return c.source }
func (c staticConfig) GetPlayerFilter() string             { return "" }
func (c staticConfig) GetStatusURL() string                { return "http://localhost/status" }
func (c staticConfig) GetStatusFile() string               { return "/tmp/status.json" }
func (c staticConfig) GetPollInterval() time.Duration      { return time.Second }
func (c staticConfig) GetUpdateInterval() time.Duration    { return time.Second }
func (c staticConfig) GetMinUpdateInterval() time.Duration { return time.Second }

func TestNewMonitor(t *testing.T) {
	tests := []struct {
		source  string
		wantErr bool
		check   func(t *testing.T, m domain.Monitor)
	}{
		{source: SourceMPRIS, check: func(t *testing.T, m domain.Monitor) { assert.IsType(t, &MprisMonitor{}, m) }},
		{source: SourceHTTP, check: func(t *testing.T, m domain.Monitor) { assert.IsType(t, &HTTPMonitor{}, m) }},
		{source: SourceFile, check: func(t *testing.T, m domain.Monitor) { assert.IsType(t, &FileMonitor{}, m) }},
		{source: "spotify", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			m, err := NewMonitor(staticConfig{source: tt.source}, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, m)
		})
	}
}
