package domain

import (
	"context"
	"time"
)

// Monitor defines the interface for sources of player status
// Implementations read the RF Music page status through MPRIS, HTTP or a file
//
//go:generate mockgen -destination=mocks/domain_mock.go -package=mocks github.com/genricoloni/rfpresence/internal/domain Monitor,PresenceService
type Monitor interface {
	// Start begins monitoring for status changes
	// It should block until context is cancelled or an error occurs
	Start(ctx context.Context) error

	// Stop gracefully stops the monitor
	Stop(ctx context.Context) error

	// Events returns a read-only channel that emits StatusUpdate
	// whenever the observed player changes
	Events() <-chan StatusUpdate
}

// Fetcher defines the interface for retrieving remote status documents
type Fetcher interface {
	// Fetch downloads the document at url
	// Returns the raw bytes, nil when the server has nothing to report
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusFunc returns the latest player status, or nil when there is none.
// It stands in for the page's global status object.
type StatusFunc func() *PlayerStatus

// UpdateHandler is invoked by the presence client whenever it wants fresh data
type UpdateHandler func(ctx context.Context)

// PresenceClient is the collaborator that renders the activity
type PresenceClient interface {
	// OnUpdate registers the handler for "update requested" events.
	// Only the last registered handler is kept.
	OnUpdate(handler UpdateHandler)

	// SetActivity publishes the payload; nil clears the activity
	SetActivity(ctx context.Context, payload *PresencePayload) error
}

// PresenceService is a PresenceClient that also owns scheduling and the
// connection lifecycle
type PresenceService interface {
	PresenceClient

	// RequestUpdate asks the client to fire the update handler soon.
	// Calls are coalesced and never block.
	RequestUpdate()

	// Run drives the update handler until ctx is cancelled
	Run(ctx context.Context) error

	// Close clears the activity and releases the connection
	Close(ctx context.Context) error
}

// Config defines the interface for application configuration
type Config interface {
	// GetClientID returns the Discord application id
	GetClientID() string

	// GetSource returns the status source kind (mpris, http or file)
	GetSource() string

	// GetPlayerFilter returns the comma separated MPRIS bus name filter,
	// empty for any player
	GetPlayerFilter() string

	// GetStatusURL returns the endpoint polled by the http source
	GetStatusURL() string

	// GetStatusFile returns the file watched by the file source
	GetStatusFile() string

	// GetPollInterval returns how often the http source polls
	GetPollInterval() time.Duration

	// GetUpdateInterval returns how often the presence is refreshed
	GetUpdateInterval() time.Duration

	// GetMinUpdateInterval returns the minimum spacing between two activity updates
	GetMinUpdateInterval() time.Duration
}
