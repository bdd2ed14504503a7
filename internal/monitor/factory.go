package monitor

import (
	"fmt"

	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/genricoloni/rfpresence/internal/fetcher"
	"go.uber.org/zap"
)

// Source kinds accepted by NewMonitor
const (
	SourceMPRIS = "mpris"
	SourceHTTP  = "http"
	SourceFile  = "file"
)

// BrowserPlayers is the default MPRIS filter: the web player only ever
// shows up through a browser's media session
const BrowserPlayers = "firefox,chromium,chrome,brave,vivaldi,opera,edge,plasma-browser-integration"

// NewMonitor builds the status source selected in the configuration
func NewMonitor(cfg domain.Config, logger *zap.Logger) (domain.Monitor, error) {
	switch cfg.GetSource() {
	case SourceMPRIS:
		return NewMprisMonitor(logger, cfg.GetPlayerFilter()), nil
	case SourceHTTP:
		return NewHTTPMonitor(logger, fetcher.NewHTTPFetcher(logger), cfg.GetStatusURL(), cfg.GetPollInterval()), nil
	case SourceFile:
		return NewFileMonitor(logger, cfg.GetStatusFile()), nil
	default:
		return nil, fmt.Errorf("unknown status source %q", cfg.GetSource())
	}
}
