package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/profclems/catchhook/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook capture server",
		Long: `Run the webhook capture server. Any request to /webhook or /webhook/* is
stored and can be read back from /latest and /req/{id}. The browser dashboard
is served on the same port unless --no-dashboard is given.

Example config file (catchhook.yaml):
  port: 43999
  data: ./catchhook-data
  max_reqs: 10000
  rate_limit: 50
  metrics_port: 9090

Usage:
  catchhook serve
  CATCHHOOK_PORT=8080 CATCHHOOK_DATA=/var/lib/catchhook catchhook serve
  catchhook serve --domain hooks.example.com --email admin@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.Config{
				Port:         viper.GetInt("port"),
				DataDir:      viper.GetString("data"),
				MaxRequests:  viper.GetInt("max_reqs"),
				MaxBodyBytes: viper.GetInt64("max_body_size"),
				RateLimit:    viper.GetInt("rate_limit"),
				RateBurst:    viper.GetInt("rate_burst"),
				MetricsPort:  viper.GetInt("metrics_port"),
				Domain:       viper.GetString("domain"),
				TLSEmail:     viper.GetString("email"),
				TLSPort:      viper.GetInt("tls_port"),
				CertDir:      viper.GetString("cert_dir"),
				Dashboard:    !viper.GetBool("no_dashboard"),
				PollInterval: viper.GetDuration("interval"),
			}

			srv, err := server.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().Int("port", 43999, "Capture HTTP port")
	cmd.Flags().String("data", "./catchhook-data", "Directory for the request database")
	cmd.Flags().Int("max-reqs", 10000, "Number of requests to keep")
	cmd.Flags().Int64("max-body-size", server.DefaultMaxBodyBytes, "Largest accepted webhook body in bytes")
	cmd.Flags().Int("rate-limit", 0, "Webhook requests per second per client IP (0 to disable)")
	cmd.Flags().Int("rate-burst", 0, "Burst capacity for rate limiting")
	cmd.Flags().Int("metrics-port", 0, "Prometheus metrics port (0 to disable)")
	cmd.Flags().String("domain", "", "Domain for Let's Encrypt certificates")
	cmd.Flags().String("email", "", "Email for Let's Encrypt (enables HTTPS with --domain)")
	cmd.Flags().Int("tls-port", 443, "HTTPS port")
	cmd.Flags().String("cert-dir", "", "Certificate cache directory (default <data>/certs)")
	cmd.Flags().Bool("no-dashboard", false, "Do not serve the browser dashboard")
	cmd.Flags().Duration("interval", 0, "Dashboard auto-refresh interval (default 5s)")

	return cmd
}
