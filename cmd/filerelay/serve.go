package main

import (
	"time"

	"github.com/goliatone/go-filerelay/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve transfers, link regeneration, metadata lookups and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
		ctx := cmd.Context()

		if err := app.relay.ValidateStore(ctx); err != nil {
			return err
		}

		go sweepRegistry(cmd, app)

		srv := server.New(app.relay,
			server.WithLogger(app.logger),
			server.WithRegistry(app.relay.Registry()),
			server.WithGatherer(app.registry),
			server.WithInfoCache(app.cfg.Server.CacheSize, app.cfg.Server.CacheTTL),
			server.WithPlayerBase(app.cfg.Server.PublicURL),
		)

		return srv.ListenAndServe(ctx, app.cfg.Server.Addr)
	}),
}

func sweepRegistry(cmd *cobra.Command, app *App) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			return
		case now := <-ticker.C:
			if removed := app.relay.Registry().CleanupExpired(now); len(removed) > 0 {
				app.logger.Info("expired transfers removed", "count", len(removed))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
