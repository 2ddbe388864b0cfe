package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/profclems/catchhook/client"
)

// addRemoteFlags adds the flags shared by commands that poll a capture server
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "http://127.0.0.1:43999", "Capture server base URL")
	cmd.Flags().Duration("interval", client.DefaultInterval, "Polling interval")

	// TLS flags
	cmd.Flags().Bool("tls-insecure", false, "Skip server certificate verification")
	cmd.Flags().String("tls-cert", "", "Client certificate file (for mTLS)")
	cmd.Flags().String("tls-key", "", "Client key file (for mTLS)")
	cmd.Flags().String("tls-ca", "", "CA certificate for server verification")
}

func newRemoteAPI() (*client.API, error) {
	return client.NewAPI(client.APIConfig{
		BaseURL: viper.GetString("server"),
		TLS: client.TLSConfig{
			InsecureSkip: viper.GetBool("tls_insecure"),
			CertFile:     viper.GetString("tls_cert"),
			KeyFile:      viper.GetString("tls_key"),
			CAFile:       viper.GetString("tls_ca"),
		},
	})
}
