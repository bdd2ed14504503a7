package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/genricoloni/rfpresence/internal/presence"
	"github.com/genricoloni/rfpresence/internal/status"
	"go.uber.org/zap"
)

const debounceDuration = 250 * time.Millisecond

// Engine orchestrates the presence pipeline.
// It listens to status events, keeps the latest snapshot and asks the
// presence client to publish it.
type Engine struct {
	logger  *zap.Logger
	monitor domain.Monitor
	store   *status.Store
	client  domain.PresenceService
	mapper  *presence.StatusMapper

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new orchestration engine
func NewEngine(
	logger *zap.Logger,
	mon domain.Monitor,
	store *status.Store,
	client domain.PresenceService,
	mapper *presence.StatusMapper,
) *Engine {
	return &Engine{
		logger:  logger,
		monitor: mon,
		store:   store,
		client:  client,
		mapper:  mapper,
	}
}

// Start launches the monitor, the presence client and the event loop.
// It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Engine starting...")

	// The fx start context expires once startup is done
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.mapper.Register()

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		if err := e.monitor.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Monitor stopped with error", zap.Error(err))
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := e.client.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Presence client stopped with error", zap.Error(err))
		}
	}()
	go func() {
		defer e.wg.Done()
		e.runLoop(runCtx)
	}()

	return nil
}

// runLoop is the main event processing loop with debouncing.
// Players emit bursts of property changes on a track switch; only the last
// one triggers an update.
func (e *Engine) runLoop(ctx context.Context) {
	events := e.monitor.Events()

	timer := time.NewTimer(debounceDuration)
	timer.Stop()
	defer timer.Stop()

	pending := false

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return

		case update, ok := <-events:
			if !ok {
				e.logger.Info("Monitor events channel closed")
				return
			}
			e.logEvent(update)

			e.store.Set(update.Source, update.Status)
			pending = true
			timer.Reset(debounceDuration)

		case <-timer.C:
			if pending {
				e.client.RequestUpdate()
				pending = false
			}
		}
	}
}

func (e *Engine) logEvent(update domain.StatusUpdate) {
	if update.Status == nil {
		e.logger.Debug("Player gone, debouncing...", zap.String("source", update.Source))
		return
	}
	e.logger.Debug("Event received, debouncing...",
		zap.String("source", update.Source),
		zap.String("title", update.Status.Title),
		zap.String("artist", update.Status.Artist),
		zap.Bool("playing", update.Status.IsPlaying))
}

// Stop halts the pipeline and clears the activity so no stale presence
// outlives the process
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")

	if e.cancel != nil {
		e.cancel()
	}

	if err := e.monitor.Stop(ctx); err != nil {
		e.logger.Warn("Failed to stop monitor", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("Timed out waiting for workers", zap.Error(ctx.Err()))
	}

	if err := e.client.Close(ctx); err != nil {
		e.logger.Error("Failed to clear presence", zap.Error(err))
		return err
	}

	e.logger.Info("Presence cleared")
	return nil
}
