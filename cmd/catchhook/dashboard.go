package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/profclems/catchhook/client"
	"github.com/profclems/catchhook/dashboard"
)

func newDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the browser dashboard for a remote capture server",
		Long: `Poll a capture server and serve the request viewer locally. Polling pauses
while no browser tab has the dashboard visible and resumes with an immediate
refresh when one does.

Usage:
  catchhook dashboard --server https://hooks.example.com
  catchhook dashboard --dashboard-port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newRemoteAPI()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := api.Health(ctx); err != nil {
				logger.Warn("capture server not reachable yet", "server", api.BaseURL(), "error", err)
			}

			dash := dashboard.New(dashboard.Config{
				WebhookURL: api.WebhookURL(),
				Logger:     logger,
			})
			defer dash.Close()

			ctrl := client.NewController(api,
				client.WithInterval(viper.GetDuration("interval")),
				client.WithLogger(logger),
				client.WithNotifier(client.MultiNotifier{client.LogNotifier{Logger: logger}, dash}),
			)
			dash.Bind(ctrl)

			errCh := make(chan error, 1)
			go func() {
				errCh <- ctrl.Start(ctx)
			}()

			addr := fmt.Sprintf("127.0.0.1:%d", viper.GetInt("dashboard_port"))
			serveErr := dash.Serve(ctx, addr)

			cancel()
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return serveErr
		},
	}

	addRemoteFlags(cmd)
	cmd.Flags().Int("dashboard-port", 4040, "Dashboard port")

	return cmd
}
