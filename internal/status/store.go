package status

import (
	"sync"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
)

// entry is the last snapshot reported by one source
type entry struct {
	status     *domain.PlayerStatus
	capturedAt time.Time
	seq        uint64 // Order of arrival across sources
}

// Store keeps the most recent status of every source a monitor reports.
// Several browsers may expose a media session at once; each one is tracked
// on its own so one of them going away does not clear another.
type Store struct {
	mu      sync.RWMutex
	sources map[string]entry
	seq     uint64
	now     func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sources: make(map[string]entry),
		now:     time.Now,
	}
}

// Set replaces the snapshot of source; nil marks that source as gone
func (s *Store) Set(source string, status *domain.PlayerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == nil {
		delete(s.sources, source)
		return
	}

	s.seq++
	s.sources[source] = entry{
		status:     status.Clone(),
		capturedAt: s.now(),
		seq:        s.seq,
	}
}

// Current returns a copy of the snapshot to publish: the most recently
// updated playing source, else the most recently updated one. While
// playing, the position is advanced by the time elapsed since the snapshot
// was taken, clamped to the track duration when one is known.
func (s *Store) Current() *domain.PlayerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best, ok := s.pick()
	if !ok {
		return nil
	}

	st := best.status.Clone()
	if !st.IsPlaying || st.CurrentTime == nil {
		return st
	}

	elapsed := s.now().Sub(best.capturedAt).Seconds()
	if elapsed <= 0 {
		return st
	}

	pos := *st.CurrentTime + elapsed
	if st.Duration != nil && *st.Duration > 0 && pos > *st.Duration {
		pos = *st.Duration
	}
	st.CurrentTime = &pos
	return st
}

func (s *Store) pick() (entry, bool) {
	var (
		best  entry
		found bool
	)
	for _, e := range s.sources {
		switch {
		case !found:
		case e.status.IsPlaying != best.status.IsPlaying:
			if !e.status.IsPlaying {
				continue
			}
		case e.seq < best.seq:
			continue
		}
		best, found = e, true
	}
	return best, found
}

// StatusFunc exposes Current as the accessor the mapper expects
func (s *Store) StatusFunc() domain.StatusFunc {
	return s.Current
}
