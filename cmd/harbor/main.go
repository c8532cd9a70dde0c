package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shipyard-dev/harbor/internal/adapters/api"
	"github.com/shipyard-dev/harbor/internal/adapters/driver"
	"github.com/shipyard-dev/harbor/internal/adapters/metrics"
	"github.com/shipyard-dev/harbor/internal/adapters/persistence"
	"github.com/shipyard-dev/harbor/internal/application/session"
	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
	"github.com/shipyard-dev/harbor/internal/infrastructure/database"
	"github.com/shipyard-dev/harbor/internal/infrastructure/logging"
	"github.com/shipyard-dev/harbor/internal/infrastructure/pidfile"
	"github.com/shipyard-dev/harbor/internal/infrastructure/status"
)

var (
	configPath string
	forceStart bool
)

func main() {
	root := &cobra.Command{
		Use:   "harbor",
		Short: "Harbor is a control plane for short-lived code-execution sandboxes",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the harbor control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveHarbor()
		},
	}
	serve.Flags().BoolVar(&forceStart, "force", false, "kill any existing harbor process and start a new one")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the harbor version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("harbor %s\n", api.Version)
		},
	}

	root.AddCommand(serve, version)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveHarbor() error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := logging.Setup(&cfg.Logging)

	pf := pidfile.New(cfg.Daemon.PIDFile)
	if err := pf.Acquire(); err != nil {
		if !forceStart {
			return fmt.Errorf("another harbor instance appears to be running: %w (use --force to replace it)", err)
		}
		log.Warn("replacing existing harbor instance")
		if err := pf.KillExisting(); err != nil {
			return fmt.Errorf("failed to kill existing instance: %w", err)
		}
		if err := pf.Acquire(); err != nil {
			return fmt.Errorf("failed to acquire pid file after replacing instance: %w", err)
		}
	}
	defer func() {
		if err := pf.Release(); err != nil {
			log.WithError(err).Warn("failed to release pid file")
		}
	}()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	log.WithField("type", cfg.Database.Type).Info("database connected")

	shipRepo := persistence.NewShipRepository(db)
	bindingRepo := persistence.NewBindingRepository(db)
	recordRepo := persistence.NewExecutionRecordRepository(db)

	containerDriver, err := driver.New(&cfg.Driver, cfg.Ship.ContainerPort, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := containerDriver.Initialize(ctx); err != nil {
		return err
	}
	defer containerDriver.Close()
	log.WithField("driver", cfg.Driver.Type).Info("container driver ready")

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.New()
		if err := m.Register(); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	scheduler := ship.NewCleanupScheduler(shipRepo, bindingRepo, containerDriver, m, log)
	defer scheduler.CancelAll()

	shipClient := ship.NewClient(&cfg.Ship, log)
	shipService := ship.NewService(shipRepo, bindingRepo, recordRepo, containerDriver, shipClient, scheduler, &cfg.Ship, m, log)
	sessionService := session.NewService(bindingRepo, recordRepo, scheduler, log)

	// Re-arm cleanup timers for ships that were running before a restart.
	if ships, err := shipRepo.ListActive(ctx); err != nil {
		log.WithError(err).Warn("failed to list active ships at startup")
	} else {
		for _, sh := range ships {
			if err := scheduler.Recompute(ctx, sh.ID); err != nil {
				log.WithError(err).Warn("failed to schedule cleanup at startup")
			}
		}
	}

	checker := status.NewChecker(shipRepo, bindingRepo, containerDriver, cfg.Ship.StatusCheckInterval, m, log)
	checker.Start(ctx)
	defer checker.Stop()

	if cfg.WarmPool.Enabled {
		replenisher := ship.NewReplenisher(shipService, shipRepo, &cfg.WarmPool, &cfg.Ship, m, log)
		replenisher.Start(ctx)
		defer replenisher.Stop()
	}

	server := api.NewServer(cfg, shipService, sessionService, bindingRepo, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("api server shutdown failed")
	}
	return nil
}
