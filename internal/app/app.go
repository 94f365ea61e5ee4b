package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncnexus/internal/data/store"
	"syncnexus/internal/handler"
	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/logger"
	"syncnexus/internal/service/agent"
	"syncnexus/internal/service/agent/llm"
	"syncnexus/internal/service/enrich"
	"syncnexus/internal/service/gateway"
	"syncnexus/internal/service/journal"
	"syncnexus/internal/service/ledger"
	"syncnexus/internal/service/nexus"
	"syncnexus/internal/service/sync"
	"syncnexus/internal/service/triage"
)

const shutdownTimeout = 10 * time.Second

// App is the main application orchestrator. It owns the process-lifetime
// components and hands them to each other explicitly.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        *store.Container
	Gateway   *gateway.Client
	Ledger    *ledger.Ledger
	Journal   *journal.Journal
	Nexus     *nexus.Nexus
	Scheduler *sync.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new App instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New("nexus", cfg.LogLevel)
	log.Infof("Initializing SyncNexus...")

	if err := cfg.EnsureStorePath(); err != nil {
		return nil, fmt.Errorf("failed to ensure store path: %w", err)
	}

	appStore, err := store.New(cfg.DBPath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	db := store.NewContainer(appStore)

	backend, err := llm.New(cfg.AI)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create model backend: %w", err)
	}

	costs := ledger.New()
	activity := journal.New(journal.DefaultCapacity, log)
	settings := nexus.NewSettings(cfg.Triage)
	gw := gateway.NewClient(cfg.Gateway, log)
	if !gw.Configured() {
		log.Warnf("Gateway URL or API key missing; sync and deploy will fail until configured")
	}

	engine := agent.NewService(llm.NewMeter(backend, costs, cfg.AI.Timeout.Std()), log)
	queue := triage.NewQueue(db.Triage, gw, func(id int) string {
		inst, ok := cfg.Instance(id)
		if !ok && len(cfg.Gateway.Instances) > 0 {
			inst = cfg.Gateway.Instances[0]
		}
		return inst.Name
	}, activity, log)
	analyzer := triage.NewAnalyzer(engine, queue, db.Analyses, activity, log)
	enricher := enrich.NewController(db.Contacts, db.Messages, engine, cfg.Enrichment, activity, log)
	coordinator := sync.NewCoordinator(gw, db, enricher, analyzer, cfg.Gateway.Instances, cfg.Sync, settings.Get, activity, log)

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Gateway:   gw,
		Ledger:    costs,
		Journal:   activity,
		Nexus:     nexus.New(db, settings, coordinator, enricher, analyzer, queue, costs, activity, log),
		Scheduler: sync.NewScheduler(log),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Context is cancelled on SIGINT/SIGTERM once Run or WatchSignals is active.
func (a *App) Context() context.Context {
	return a.ctx
}

// WatchSignals cancels the app context on SIGINT or SIGTERM.
func (a *App) WatchSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			a.Log.Infof("Received %v, initiating shutdown...", sig)
			a.cancel()
		case <-a.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

// Run serves the HTTP API and runs the periodic sync until interrupted.
func (a *App) Run() error {
	a.Log.Infof("Starting SyncNexus...")
	a.WatchSignals()

	if spec := a.Config.Sync.Schedule; spec != "" {
		err := a.Scheduler.Add(spec,
			sync.Job{Name: sync.TypeGroups, Run: func(ctx context.Context) error {
				_, err := a.Nexus.SyncGroups(ctx, 0)
				return err
			}},
			sync.Job{Name: sync.TypeMonitored, Run: func(ctx context.Context) error {
				_, err := a.Nexus.SyncMonitored(ctx)
				return err
			}},
		)
		if err != nil {
			a.Shutdown()
			return err
		}
		a.Scheduler.Start(a.ctx)
	}

	srv := &http.Server{
		Addr:              a.Config.API.Listen,
		Handler:           handler.NewAPI(a.Nexus, a.Log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.Infof("API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.Log.Infof("SyncNexus is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-a.ctx.Done():
	case runErr = <-errCh:
		if runErr != nil {
			runErr = fmt.Errorf("api server: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Warnf("API shutdown: %v", err)
	}
	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops background work and closes the store.
func (a *App) Shutdown() error {
	a.cancel()
	a.Scheduler.Stop()
	err := a.DB.Close()
	a.Log.Sync()
	return err
}
