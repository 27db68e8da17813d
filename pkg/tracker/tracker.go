// Package tracker wires the session-activity pipeline together: settings,
// session registry, event dispatcher, retry queue, heartbeat scheduler,
// persistence, and the local HTTP API observation clients talk to.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/internal/store"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/collector"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/dispatch"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/heartbeat"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/retry"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/session"
)

// App owns the process-wide tracker state. Construct once at startup; the
// registry, queue, and settings live until the process exits.
type App struct {
	Settings   *config.Store
	Registry   *session.Registry
	Collector  *collector.Client
	Dispatcher *dispatch.Dispatcher
	Queue      *retry.Queue
	Heartbeat  *heartbeat.Scheduler
	Store      *store.Store

	router *mux.Router
	log    logr.Logger
}

// NewApp builds the pipeline from configuration. configPath may be empty;
// settings updates are then kept in memory only.
func NewApp(cfg *config.Config, configPath string, log logr.Logger) (*App, error) {
	settings := config.NewStore(cfg, configPath, log)

	st, err := store.Open(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	client := collector.NewClient(settings)
	registry := session.NewRegistry(settings, log)
	audit := dispatch.NewLog(dispatch.DefaultLogCap, st, log)
	dispatcher := dispatch.NewDispatcher(settings, client, registry, audit, log)

	queue := retry.NewQueue(dispatcher.Redrive, st, retry.Options{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		SweepInterval: cfg.Retry.SweepInterval,
		KickDelay:     cfg.Retry.KickDelay,
		Probe:         client.Health,
		OnDrop:        dispatcher.NoteDropped,
	}, log)
	dispatcher.AttachQueue(queue)

	if err := queue.Restore(); err != nil {
		// Pending retries are best effort across restarts; a failed
		// restore starts with an empty queue rather than refusing to run.
		log.Error(err, "failed to restore retry queue")
	}

	app := &App{
		Settings:   settings,
		Registry:   registry,
		Collector:  client,
		Dispatcher: dispatcher,
		Queue:      queue,
		Heartbeat:  heartbeat.NewScheduler(registry, dispatcher.Dispatch, settings, log),
		Store:      st,
		log:        log.WithName("tracker"),
	}
	return app, nil
}

// Start launches the background workers: the retry sweeper and the
// heartbeat scheduler. Both stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Queue.Run(ctx); err != nil && err != context.Canceled {
			a.log.Error(err, "retry sweeper exited")
		}
	}()
	go func() {
		if err := a.Heartbeat.Run(ctx); err != nil && err != context.Canceled {
			a.log.Error(err, "heartbeat scheduler exited")
		}
	}()
}

// Build creates the local HTTP server for the observation and UI clients.
func (a *App) Build() *http.Server {
	a.router = mux.NewRouter()
	a.setupRoutes()

	cfg := a.Settings.Snapshot().Server
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Handler exposes the router for tests.
func (a *App) Handler() http.Handler {
	if a.router == nil {
		a.router = mux.NewRouter()
		a.setupRoutes()
	}
	return a.router
}

// Close releases the persistence layer.
func (a *App) Close() error {
	return a.Store.Close()
}
