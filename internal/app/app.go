// Package app wires the database, settings, scheduler and HTTP surface into
// a running server.
package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modelrelay/modelrelay/internal/affinity"
	"github.com/modelrelay/modelrelay/internal/catalog"
	"github.com/modelrelay/modelrelay/internal/concurrency"
	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/db"
	"github.com/modelrelay/modelrelay/internal/health"
	relayhttp "github.com/modelrelay/modelrelay/internal/http"
	"github.com/modelrelay/modelrelay/internal/reservation"
	"github.com/modelrelay/modelrelay/internal/scheduler"
	"github.com/modelrelay/modelrelay/internal/settings"
	"github.com/modelrelay/modelrelay/internal/watcher"
)

// Migrate opens the database and runs migrations, then exits.
func Migrate(cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the scheduler service and blocks until the context is
// canceled or the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	serverCfg, errServer := config.LoadServerConfig(configPath)
	if errServer != nil {
		return errServer
	}
	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}

	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	settingsStore := settings.NewStore(conn)
	if errRefresh := settingsStore.Refresh(); errRefresh != nil {
		return errRefresh
	}
	snapFn := settingsStore.Current

	catalogStore := catalog.NewStore(conn)
	monitor := health.NewMonitor(snapFn)
	calc := reservation.NewCalculator(snapFn)
	concurrencyManager := concurrency.NewManager(snapFn)
	affinityManager := affinity.NewManager(snapFn)

	sched := scheduler.New(
		catalogStore,
		monitor,
		scheduler.NewAdmission(concurrencyManager, calc),
		affinityManager,
		calc,
		snapFn,
	)

	settingsWatcher := watcher.New(settingsStore, time.Duration(serverCfg.SettingsPollSeconds)*time.Second)
	settingsWatcher.Start(ctx)
	defer settingsWatcher.Stop()

	server := relayhttp.NewServer(serverCfg.ListenAddr, relayhttp.Deps{
		DB:        conn,
		Catalog:   catalogStore,
		Scheduler: sched,
		Settings:  settingsStore,
		JWT:       jwtCfg,
	})

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", serverCfg.ListenAddr).Info("server listening")
		errCh <- server.Run()
	}()

	select {
	case errRun := <-errCh:
		return errRun
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("shutdown did not complete cleanly")
		return errShutdown
	}
	return <-errCh
}
