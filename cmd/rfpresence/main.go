package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genricoloni/rfpresence/internal/config"
	"github.com/genricoloni/rfpresence/internal/presence"
	"github.com/genricoloni/rfpresence/internal/status"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const stopTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "rfpresence",
		Short: "Show what you play on RF Music as your Discord status",
		Long: `rfpresence watches the RF Music web player through MPRIS, an HTTP
endpoint or a status file and mirrors the current track into Discord
rich presence.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), cfgFile)
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: $XDG_CONFIG_HOME/rfpresence/config.toml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the presence daemon (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemon(cmd.Context(), cfgFile)
			},
		},
		newPreviewCmd(&cfgFile),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "rfpresence %s\n", version)
			},
		},
	)

	return root
}

// runDaemon starts the application and blocks until SIGINT or SIGTERM
func runDaemon(ctx context.Context, cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	app := fx.New(AppOptions(cfg))
	if err := app.Err(); err != nil {
		return err
	}

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return app.Stop(stopCtx)
}

func newPreviewCmd(cfgFile *string) *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:   "preview [status.json]",
		Short: "Print the presence a status document maps to",
		Long: `Decode a player status document from the given file, or stdin when
omitted or "-", and print the resulting presence payload as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read status: %w", err)
			}
			st, err := status.Decode(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if at != 0 {
				now = time.Unix(at, 0)
			}

			mapper := presence.NewStatusMapper(zap.NewNop(), nil, nil, cfg.Presence)
			payload := mapper.Map(st, now)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
	cmd.Flags().Int64Var(&at, "at", 0, "evaluate timestamps at this unix time instead of now")

	return cmd
}
