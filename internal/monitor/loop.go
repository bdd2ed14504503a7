package monitor

import (
	"bytes"
	"context"
	"sync"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/genricoloni/rfpresence/internal/status"
	"go.uber.org/zap"
)

// lifecycle is the Start/Stop bookkeeping shared by the document based monitors
type lifecycle struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	events  chan domain.StatusUpdate
	last    []byte
	seen    bool
}

// begin marks the monitor running and returns its context, or false when
// it was already started
func (l *lifecycle) begin(ctx context.Context) (context.Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil, false
	}
	l.running = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	return runCtx, true
}

// end cancels the run and closes the events channel once the producer is gone
func (l *lifecycle) end() bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return false
	}
	l.cancel()
	l.running = false
	l.mu.Unlock()

	l.wg.Wait()
	close(l.events)
	return true
}

// publish decodes a status document and emits it when it differs from the
// previous one. Only the producer goroutine calls publish.
func (l *lifecycle) publish(logger *zap.Logger, source string, data []byte) {
	if l.seen && bytes.Equal(l.last, data) {
		return
	}

	st, err := status.Decode(data)
	if err != nil {
		logger.Warn("Ignoring malformed status document",
			zap.String("source", source),
			zap.Error(err))
		return
	}

	// Remember the document only once it is delivered, so a dropped update
	// is retried on the next identical read
	select {
	case l.events <- domain.StatusUpdate{Source: source, Status: st}:
		l.last = append(l.last[:0], data...)
		l.seen = true
		logger.Debug("Status change detected",
			zap.String("source", source),
			zap.Bool("present", st != nil))
	default:
		logger.Warn("Events channel full, dropping status update", zap.String("source", source))
	}
}
