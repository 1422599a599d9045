package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"pool-server/internal/config"
	"pool-server/internal/logging"
	"pool-server/internal/server"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pool-server",
	Short: "Real-time session server for two-player pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}

		logger := logging.New("pool", cfg.Log.Level)
		logger.Info("Configuration loaded", "port", cfg.Port, "debug", cfg.Debug, "origins", cfg.AllowedOrigins)

		return run(cfg, logger)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().Int("port", 0, "listen port (overrides POOL_PORT/PORT)")
	rootCmd.Flags().String("log-level", "", "debug, info, warn or error")
	rootCmd.Flags().Bool("debug", false, "serve runtime metrics at /debug/statsviz/")
}

func gracefulShutdown(customServer *server.Server, httpServer *http.Server, logger *log.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := customServer.Shutdown(ctx); err != nil {
		logger.Error("Error during custom shutdown", "err", err)
	}

	// Shutdown HTTP server
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", "err", err)
	}

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func run(cfg config.Config, logger *log.Logger) error {
	customServer, httpServer := server.NewServer(cfg, logger)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(customServer, httpServer, logger, done)

	logger.Info("Listening", "addr", httpServer.Addr)
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Wait for the graceful shutdown to complete
	<-done
	logger.Info("Graceful shutdown complete.")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
