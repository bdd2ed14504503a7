package main

import (
	"context"

	"github.com/genricoloni/rfpresence/internal/config"
	"github.com/genricoloni/rfpresence/internal/discord"
	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/genricoloni/rfpresence/internal/engine"
	"github.com/genricoloni/rfpresence/internal/monitor"
	"github.com/genricoloni/rfpresence/internal/presence"
	"github.com/genricoloni/rfpresence/internal/status"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppOptions is the daemon's dependency graph for the given configuration
func AppOptions(cfg *config.AppConfig) fx.Option {
	return fx.Options(
		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),

		fx.Supply(cfg),

		// Provide dependencies
		fx.Provide(
			func(c *config.AppConfig) domain.Config { return c },
			newLogger,
			monitor.NewMonitor,
			status.NewStore,
			fx.Annotate(
				discord.NewClient,
				fx.As(new(domain.PresenceService)),
			),
			newMapper,
			engine.NewEngine,
		),

		// Lifecycle hooks
		fx.Invoke(registerHooks),
	)
}

// newLogger creates the zap logger described by the configuration
func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.LogFormat == config.FormatConsole {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zc.Build()
}

func newMapper(logger *zap.Logger, store *status.Store, client domain.PresenceService, cfg *config.AppConfig) *presence.StatusMapper {
	return presence.NewStatusMapper(logger.Named("mapper"), store.StatusFunc(), client, cfg.Presence)
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, cfg *config.AppConfig, eng *engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("RF Presence started",
				zap.String("source", cfg.GetSource()),
				zap.String("config", cfg.Path()),
				zap.String("clientID", cfg.GetClientID()))
			return eng.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return eng.Stop(ctx)
		},
	})
}
