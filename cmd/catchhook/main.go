package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/profclems/catchhook/client"
)

var (
	version  = "dev"
	logger   *slog.Logger
	cfgFile  string
	logLevel string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

	rootCmd := &cobra.Command{
		Use:           "catchhook",
		Short:         "Capture webhook requests and inspect them as they arrive",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd)
			return setupLogger()
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("catchhook %s\n", version))
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./catchhook.yaml or ~/.catchhook/catchhook.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Dir(client.DefaultConfigPath()))
		viper.SetConfigName("catchhook")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CATCHHOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debug("using config file", "file", viper.ConfigFileUsed())
	}
}

// bindFlags binds the flags of the command being run to viper keys, with
// dashes replaced by underscores so flags, config file keys and CATCHHOOK_*
// variables share one name.
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func setupLogger() error {
	level := viper.GetString("log_level")
	if level == "" {
		level = "info"
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
