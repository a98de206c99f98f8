package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/tailserver/internal/logging"
	"github.com/loykin/tailserver/internal/metrics"
	"github.com/loykin/tailserver/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := DefaultConfig()

	cmd := &cobra.Command{
		Use:   "tailserver [logfile]",
		Short: "Stream lines appended to a file to every connected TCP client",
		Long: `tailserver follows a single log file, like tail -f, and sends every newly
appended line to all connected TCP clients. Clients receive raw newline
terminated text from the moment they connect; there is no handshake.
Rotation by rename (logrotate create) and by truncation (copytruncate) is
detected and followed.

Examples:
  # Follow /var/log/app.log on port 9000
  tailserver /var/log/app.log --port 9000

  # Bind to localhost only, poll every 50ms, decode as UTF-8
  tailserver --logfile app.log --host 127.0.0.1 -p 9000 -i 50ms --encoding utf-8

  # Expose Prometheus metrics and log as JSON
  tailserver app.log -p 9000 --prometheus.enable --log.format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if cmd.Flags().Changed("logfile") && config.LogFile != args[0] {
					return fmt.Errorf("logfile given both as argument (%s) and flag (%s)", args[0], config.LogFile)
				}
				if err := cmd.Flags().Set("logfile", args[0]); err != nil {
					return err
				}
			}
			if err := config.LoadFromViper(cmd); err != nil {
				return err
			}
			return config.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, config)
		},
	}

	config.SetupFlags(cmd)
	return cmd
}

func run(ctx context.Context, config *Config) error {
	logger, closeLog, err := logging.New(config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	// Optionally start Prometheus metrics endpoint
	var metricsStop = func() error { return nil }
	if config.Prometheus.Enable {
		// Register our metrics explicitly to the default registry to avoid library init-time side effects
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("failed to register prometheus metrics: %w", err)
		}
		metricsServer, err := metrics.Start(config.Prometheus.Addr)
		if err != nil {
			return fmt.Errorf("failed to start prometheus endpoint: %w", err)
		}
		logger.Info("metrics endpoint started", "addr", metricsServer.Addr().String())
		metricsStop = metricsServer.Stop
	}
	defer func() { _ = metricsStop() }()

	srv, err := server.New(config.ServerConfig(), server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("error creating server: %w", err)
	}
	return srv.Run(ctx)
}
