package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/twinly/internal/app"
	"github.com/abhisek/twinly/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if addr != "" {
				a.Config.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.Log.Info("starting",
				"addr", a.Config.Server.Addr,
				"store", a.Config.Store.Backend,
				"provider", a.Config.LLM.Provider,
				"model", a.Provider.ModelID(),
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.Server().Run(ctx)
			})
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.Metrics.Handler())
				admin := server.New(metricsAddr, mux, 5*time.Second, a.Log.With("listener", "metrics"))
				g.Go(func() error {
					return admin.Run(ctx)
				})
			}

			err := g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	serveCmd.Flags().String("metrics-addr", "", "Serve /metrics on a separate listener")
}
