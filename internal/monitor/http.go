package monitor

import (
	"context"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"go.uber.org/zap"
)

// failuresBeforeAbsent is the number of consecutive failed polls after which
// the page is considered gone
const failuresBeforeAbsent = 3

// HTTPMonitor polls an endpoint serving the page's status object as JSON
type HTTPMonitor struct {
	lifecycle
	logger   *zap.Logger
	fetcher  domain.Fetcher
	url      string
	interval time.Duration
}

// NewHTTPMonitor creates a monitor polling url every interval
func NewHTTPMonitor(logger *zap.Logger, fetcher domain.Fetcher, url string, interval time.Duration) *HTTPMonitor {
	return &HTTPMonitor{
		lifecycle: lifecycle{events: make(chan domain.StatusUpdate, 10)},
		logger:    logger,
		fetcher:   fetcher,
		url:       url,
		interval:  interval,
	}
}

// Start polls until the context is cancelled or Stop is called
func (m *HTTPMonitor) Start(ctx context.Context) error {
	runCtx, ok := m.begin(ctx)
	if !ok {
		return nil
	}
	defer m.wg.Done()

	m.logger.Info("HTTP monitor started",
		zap.String("url", m.url),
		zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	failures := 0
	for {
		data, err := m.fetcher.Fetch(runCtx, m.url)
		switch {
		case err != nil && runCtx.Err() != nil:
			// Cancelled mid-request
		case err != nil:
			failures++
			// Only the first failure of a streak is worth a warning
			if failures == 1 {
				m.logger.Warn("Failed to poll status", zap.String("url", m.url), zap.Error(err))
			}
			if failures >= failuresBeforeAbsent {
				// Repeated on every failure until delivered; publish dedups
				m.publish(m.logger, m.url, nil)
			}
		default:
			if failures > 0 {
				m.logger.Info("Status endpoint reachable again", zap.String("url", m.url))
			}
			failures = 0
			m.publish(m.logger, m.url, data)
		}

		select {
		case <-runCtx.Done():
			m.logger.Info("HTTP monitor stopped")
			return runCtx.Err()
		case <-ticker.C:
		}
	}
}

// Stop gracefully stops the monitor
func (m *HTTPMonitor) Stop(ctx context.Context) error {
	if m.end() {
		m.logger.Info("HTTP monitor shutdown complete")
	}
	return nil
}

// Events returns a read-only channel that emits StatusUpdate
func (m *HTTPMonitor) Events() <-chan domain.StatusUpdate {
	return m.events
}
