package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/edgescan/internal/config"
	"github.com/HerbHall/edgescan/internal/event"
	"github.com/HerbHall/edgescan/internal/healthcheck"
	"github.com/HerbHall/edgescan/internal/orchestrator"
	"github.com/HerbHall/edgescan/internal/registry"
	"github.com/HerbHall/edgescan/internal/server"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/internal/settings"
	"github.com/HerbHall/edgescan/internal/version"
)

const shutdownTimeout = 10 * time.Second

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("edgescan starting",
		zap.String("version", version.Short()),
		zap.String("config", cfg.ConfigFileUsed()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	settingsRepo, err := services.NewSQLiteSettingsRepository(ctx, db)
	if err != nil {
		return err
	}
	history, err := services.NewSQLiteScanRepository(ctx, db)
	if err != nil {
		return err
	}
	regStore, err := newRegistryStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	reg, err := registry.New(ctx, regStore, logger.Named("registry"))
	if err != nil {
		return err
	}

	// A scan interface chosen through the API wins over the config file.
	scanIface, err := services.StringSetting(ctx, settingsRepo, settings.ScanInterfaceKey, cfg.GetString("scan.interface"))
	if err != nil {
		return err
	}
	scanner, closer, err := buildScanner(cfg, scanIface, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	schedule, err := orchestrator.ParseSchedule(cfg.GetString("scan.schedule"), cfg.GetDuration("scan.interval"))
	if err != nil {
		return err
	}

	bus := event.NewBus(logger.Named("events"))
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := orchestrator.NewMetrics(promReg)

	publisher := healthcheck.NewPublisher(cfg.GetString("healthcheck.path"), healthcheckOptions(cfg), bus, logger.Named("healthcheck"))
	ifaces := services.NewInterfaceService()

	orch := orchestrator.New(orchestrator.Config{
		Scanner:   scanner,
		Registry:  reg,
		Publisher: publisher,
		History:   history,
		Bus:       bus,
		Metrics:   metrics,
		Logger:    logger.Named("orchestrator"),
		Subnets:   subnetSource(cfg, ifaces, logger),
		Schedule:  schedule,
	})

	// Reflect the persisted selection before the first sweep completes.
	if err := orch.PublishConfig(ctx); err != nil {
		logger.Error("initial health-check config publish failed", zap.Error(err))
	}

	addr := net.JoinHostPort(cfg.GetString("server.host"), strconv.Itoa(cfg.GetInt("server.port")))
	srv := server.New(server.Options{
		Addr:      addr,
		RateLimit: cfg.GetFloat64("server.rate_limit"),
		RateBurst: cfg.GetInt("server.rate_burst"),
	}, server.Deps{
		Scans:    orch,
		Devices:  reg,
		History:  history,
		Events:   bus,
		Gatherer: promReg,
		Routes:   []server.RouteRegistrar{settings.NewHandler(settingsRepo, ifaces, logger.Named("settings"))},
	}, logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("edgescan ready", zap.String("addr", addr))
	err = g.Wait()
	orch.Wait()

	if ferr := reg.Flush(context.Background()); ferr != nil {
		logger.Error("final registry flush failed", zap.Error(ferr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("edgescan stopped")
	return nil
}
