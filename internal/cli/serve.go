package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/server"
	"github.com/dyike/tsladash/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web dashboard",
		Long: `Serve the dashboard page, chart and JSON API. The data file and the config
file are watched; changes are applied without a restart and open pages reload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return runServe(cmd, a, addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (configured listen_addr if empty)")
	return cmd
}

func runServe(cmd *cobra.Command, a *app, addr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.manager == nil {
		if err := a.attachDefaultConfig(); err != nil {
			return err
		}
	}

	store, rec := a.openHistory()
	var opts []service.Option
	if store != nil {
		defer store.Close()
		opts = append(opts, service.WithRecorder(rec))
	}
	opts = append(opts, service.WithLogger(a.log))
	dash := service.New(a.cfg, opts...)

	// A broken data file still serves the page with the load error.
	if _, err := dash.Reload(ctx); err != nil {
		a.log.WithError(err).Error("initial load failed")
	}
	if err := dash.WatchDataFile(ctx); err != nil {
		a.log.WithError(err).Warn("data file watch disabled")
	}

	if a.manager != nil {
		err := a.manager.Watch(ctx, func(next config.Config) {
			a.overlay(&next)
			if _, err := dash.Reconfigure(context.WithoutCancel(ctx), next); err != nil {
				a.log.WithError(err).Warn("config change not applied")
			}
		})
		if err != nil {
			a.log.WithError(err).Warn("config watch disabled")
		}
	}

	if addr == "" {
		addr = a.cfg.ListenAddr
	}
	return server.New(dash, a.log).Run(ctx, addr)
}
