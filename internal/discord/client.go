package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

const defaultResponseTimeout = 5 * time.Second

// DialFunc opens a raw IPC connection to the Discord client
type DialFunc func(ctx context.Context) (net.Conn, error)

// Options tune the client's schedule
type Options struct {
	ClientID          string
	UpdateInterval    time.Duration
	MinUpdateInterval time.Duration
	ResponseTimeout   time.Duration
}

// Client publishes activities to the local Discord client over IPC.
// It owns the update schedule and the connection lifecycle.
type Client struct {
	logger *zap.Logger
	opts   Options
	dial   DialFunc
	pid    int
	now    func() time.Time

	mu       sync.Mutex // Guards the connection state below
	conn     net.Conn
	lastSent []byte // Encoded activity last acknowledged by Discord
	backoff  *backoff.Backoff
	nextDial time.Time

	handlerMu sync.RWMutex
	handler   domain.UpdateHandler

	nudge chan struct{}
}

// NewClient creates a Discord IPC client from the application configuration
func NewClient(logger *zap.Logger, cfg domain.Config) *Client {
	return newClient(logger, Options{
		ClientID:          cfg.GetClientID(),
		UpdateInterval:    cfg.GetUpdateInterval(),
		MinUpdateInterval: cfg.GetMinUpdateInterval(),
	}, dialIPC)
}

func newClient(logger *zap.Logger, opts Options, dial DialFunc) *Client {
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = defaultResponseTimeout
	}
	return &Client{
		logger: logger,
		opts:   opts,
		dial:   dial,
		pid:    os.Getpid(),
		now:    time.Now,
		backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    time.Minute,
			Factor: 2,
			Jitter: true,
		},
		nudge: make(chan struct{}, 1),
	}
}

// OnUpdate registers the handler fired on every scheduled update
func (c *Client) OnUpdate(handler domain.UpdateHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = handler
}

// RequestUpdate asks Run to fire the handler as soon as the rate limit allows
func (c *Client) RequestUpdate() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// Run fires the update handler once at start, then on every tick of the
// update interval and on every RequestUpdate, never more often than the
// minimum update interval. It returns when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.UpdateInterval)
	defer ticker.Stop()

	var (
		lastFired time.Time
		timer     *time.Timer
		pending   <-chan time.Time
	)

	fire := func() {
		lastFired = c.now()
		c.handlerMu.RLock()
		h := c.handler
		c.handlerMu.RUnlock()
		if h != nil {
			h(ctx)
		}
	}

	request := func() {
		if pending != nil {
			return // Already scheduled
		}
		wait := c.opts.MinUpdateInterval - c.now().Sub(lastFired)
		if lastFired.IsZero() || wait <= 0 {
			fire()
			return
		}
		timer = time.NewTimer(wait)
		pending = timer.C
	}

	c.logger.Info("Presence client running",
		zap.Duration("updateInterval", c.opts.UpdateInterval),
		zap.Duration("minUpdateInterval", c.opts.MinUpdateInterval))

	request()
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			c.logger.Info("Presence client loop stopped")
			return nil
		case <-ticker.C:
			request()
		case <-c.nudge:
			request()
		case <-pending:
			timer, pending = nil, nil
			fire()
		}
	}
}

// SetActivity publishes the payload, connecting first when needed.
// A nil payload clears the activity. Identical consecutive payloads are
// acknowledged without being resent.
func (c *Client) SetActivity(ctx context.Context, payload *domain.PresencePayload) error {
	act := toActivity(payload)
	body, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && bytes.Equal(body, c.lastSent) {
		return nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	if err := c.sendActivityLocked(ctx, act); err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			// Transport failure: start over on the next update
			c.dropLocked()
		}
		return err
	}

	c.lastSent = body
	return nil
}

// Close clears the activity and says goodbye to Discord
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if err := c.sendActivityLocked(ctx, nil); err != nil {
		c.logger.Warn("Failed to clear activity", zap.Error(err))
	}
	if err := writeFrame(c.conn, opClose, struct{}{}); err != nil {
		c.logger.Debug("Failed to send close frame", zap.Error(err))
	}

	c.dropLocked()
	c.logger.Info("Disconnected from Discord")
	return nil
}

// connectLocked dials and performs the handshake, honoring the reconnect backoff
func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if now := c.now(); now.Before(c.nextDial) {
		return fmt.Errorf("%w: next attempt in %s", ErrNotConnected, c.nextDial.Sub(now).Round(time.Second))
	}

	conn, err := c.dial(ctx)
	if err == nil {
		err = c.handshake(ctx, conn)
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		delay := c.backoff.Duration()
		c.nextDial = c.now().Add(delay)
		c.logger.Debug("Discord connection failed",
			zap.Duration("retryIn", delay),
			zap.Error(err))
		return err
	}

	c.backoff.Reset()
	c.nextDial = time.Time{}
	c.conn = conn
	c.logger.Info("Connected to Discord", zap.String("clientID", c.opts.ClientID))
	return nil
}

func (c *Client) handshake(ctx context.Context, conn net.Conn) error {
	c.setDeadline(ctx, conn)
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, opHandshake, handshake{Version: 1, ClientID: c.opts.ClientID}); err != nil {
		return err
	}

	op, body, err := readFrame(conn)
	if err != nil {
		return err
	}

	switch op {
	case opClose:
		return closeError(body)
	case opFrame:
		var resp response
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("invalid handshake response: %w", err)
		}
		if resp.Evt != "READY" {
			return fmt.Errorf("unexpected handshake event %q", resp.Evt)
		}
		return nil
	default:
		return fmt.Errorf("unexpected handshake opcode %d", op)
	}
}

// sendActivityLocked issues SET_ACTIVITY and waits for the matching reply
func (c *Client) sendActivityLocked(ctx context.Context, act *activity) error {
	conn := c.conn
	c.setDeadline(ctx, conn)
	defer conn.SetDeadline(time.Time{})

	nonce := uuid.NewString()
	cmd := command{
		Cmd:   "SET_ACTIVITY",
		Args:  activityArgs{PID: c.pid, Activity: act},
		Nonce: nonce,
	}
	if err := writeFrame(conn, opFrame, cmd); err != nil {
		return err
	}

	for {
		op, body, err := readFrame(conn)
		if err != nil {
			return err
		}

		switch op {
		case opPing:
			if err := writeRaw(conn, opPong, body); err != nil {
				return err
			}
		case opClose:
			return closeError(body)
		case opFrame:
			var resp response
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			if resp.Nonce != nonce {
				continue // Unrelated event
			}
			if resp.Evt == "ERROR" {
				rpcErr := &RPCError{}
				if err := json.Unmarshal(resp.Data, rpcErr); err != nil {
					return fmt.Errorf("invalid error response: %w", err)
				}
				return rpcErr
			}
			return nil
		}
	}
}

func (c *Client) setDeadline(ctx context.Context, conn net.Conn) {
	deadline := time.Now().Add(c.opts.ResponseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.lastSent = nil
}

// closeError turns a close frame body into an error
func closeError(body []byte) error {
	rpcErr := &RPCError{}
	if err := json.Unmarshal(body, rpcErr); err != nil || rpcErr.Message == "" {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, rpcErr)
}
