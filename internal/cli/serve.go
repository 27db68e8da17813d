package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
)

const defaultConfigPath = "config/tracker.yaml"

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker daemon",
		Long: `Run the tracker daemon: the local HTTP API, the retry sweeper,
and the heartbeat scheduler. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := newLogger(viper.GetBool("verbose"))

	configPath, cfg, err := loadConfiguration(logger)
	if err != nil {
		return err
	}

	logger.Info("starting tracker",
		"collector", cfg.Collector.URL,
		"listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"storage", cfg.Storage.Driver)

	app, err := tracker.NewApp(cfg, configPath, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app.Start(ctx)

	httpServer := app.Build()
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "http server error")
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, gracefully stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "http server shutdown error")
	}

	// Stop the workers and persist pending retries before the process exits.
	cancel()
	if err := app.Store.SaveItems(app.Queue.Items()); err != nil {
		logger.Error(err, "failed to persist retry queue")
	}

	logger.Info("shutdown complete")
	return nil
}

// loadConfiguration resolves the config path from the --config flag and
// loads it, writing a default file when none exists yet.
func loadConfiguration(logger logr.Logger) (string, *config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Info("config file not found, using defaults", "path", configPath)
		cfg := config.DefaultConfig()
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			logger.Error(err, "could not create config directory", "path", configPath)
		} else if err := config.SaveConfig(cfg, configPath); err != nil {
			logger.Error(err, "could not save default config", "path", configPath)
		}
		return configPath, cfg, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", nil, err
	}
	return configPath, cfg, nil
}

func newLogger(verbose bool) logr.Logger {
	verbosity := 0
	if verbose {
		verbosity = 2
	}
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			log.Printf("%s: %s", prefix, args)
		} else {
			log.Print(args)
		}
	}, funcr.Options{Verbosity: verbosity})
}
