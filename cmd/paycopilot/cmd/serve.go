package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/paycopilot/internal/api"
	"github.com/entrepeneur4lyf/paycopilot/internal/config"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API with the query, chat, transaction and alert
endpoints, the stage-event WebSocket and the alert event stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := config.Get()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		server := api.NewServer(cfg, api.Dependencies{
			Assistant:   a.pipeline,
			Chats:       a.stores.chats,
			Cache:       a.memory,
			Reports:     a.reports,
			Alerts:      a.stores.alerts,
			Webhooks:    a.alerts,
			Database:    a.exec,
			StageEvents: a.stageEvents,
			AlertEvents: a.alertEvents,
			Metrics:     a.metrics.Handler(),
		})

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(port)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on (overrides server.port)")
}
