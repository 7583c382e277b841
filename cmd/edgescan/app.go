package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/edgescan/internal/backup"
	"github.com/HerbHall/edgescan/internal/config"
	"github.com/HerbHall/edgescan/internal/healthcheck"
	"github.com/HerbHall/edgescan/internal/recon"
	"github.com/HerbHall/edgescan/internal/registry"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/internal/settings"
	"github.com/HerbHall/edgescan/internal/store"
)

// mdnsCacheTTL is how long mDNS hostnames are reused between sweeps.
const mdnsCacheTTL = 5 * time.Minute

// newLogger builds the process logger from log.level and log.format.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if strings.EqualFold(cfg.GetString("log.format"), "console") {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level, err := zap.ParseAtomicLevel(cfg.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

// databasePath returns the SQLite file inside data_dir.
func databasePath(cfg *config.Config) string {
	return filepath.Join(cfg.GetString("data_dir"), backup.DatabaseFile)
}

// registryJSONPath returns the JSON registry file used by the json backend.
func registryJSONPath(cfg *config.Config) string {
	if p := cfg.GetString("registry.path"); p != "" {
		return p
	}
	return filepath.Join(cfg.GetString("data_dir"), "registry.json")
}

// openStore opens (creating if needed) the SQLite database.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	db, err := store.New(databasePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newRegistryStore selects the registry persistence backend.
func newRegistryStore(ctx context.Context, cfg *config.Config, db *store.SQLiteStore) (registry.Store, error) {
	switch backend := cfg.GetString("registry.backend"); backend {
	case "", "sqlite":
		repo, err := services.NewSQLiteDeviceRepository(ctx, db)
		if err != nil {
			return nil, err
		}
		return registry.NewSQLStore(repo), nil
	case "json":
		return registry.NewJSONFileStore(registryJSONPath(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown registry.backend %q", backend)
	}
}

// healthcheckOptions maps healthcheck.* keys onto rendering options.
func healthcheckOptions(cfg *config.Config) healthcheck.Options {
	return healthcheck.Options{
		Location:            cfg.GetString("location"),
		Interval:            cfg.GetDuration("healthcheck.interval"),
		PlaceholderInterval: cfg.GetDuration("healthcheck.placeholder_interval"),
		WebPort:             cfg.GetInt("healthcheck.web_port"),
		Metrics:             cfg.GetBool("healthcheck.metrics"),
	}
}

// subnetSource returns the configured subnets, or the /24 of every up
// interface when none are configured.
func subnetSource(cfg *config.Config, ifaces settings.InterfaceLister, logger *zap.Logger) func() []string {
	return func() []string {
		if subnets := cfg.GetStringSlice("scan.subnets"); len(subnets) > 0 {
			return subnets
		}
		list, err := ifaces.ListNetworkInterfaces()
		if err != nil {
			logger.Warn("detect local subnets", zap.Error(err))
			return nil
		}
		subnets := recon.LocalSubnets(list)
		if len(subnets) == 0 {
			logger.Warn("no scan subnets configured and none detected")
		}
		return subnets
	}
}

// buildScanner wires the prober stack from scan.* keys. The returned closer
// releases the active ARP socket, if one was opened. scanIface overrides
// scan.interface when non-empty.
func buildScanner(cfg *config.Config, scanIface string, logger *zap.Logger) (*recon.Scanner, io.Closer, error) {
	pinger := recon.NewICMPPinger(cfg.GetDuration("scan.ping_timeout"), cfg.GetBool("scan.privileged"))
	ports := recon.NewTCPPortProber(cfg.GetDuration("scan.port_timeout"))

	proberOpts := []recon.ProberOption{recon.WithPorts(cfg.GetIntSlice("scan.ports"))}
	var closer io.Closer = nopCloser{}

	switch mode := cfg.GetString("scan.mac_resolution"); mode {
	case "", "table":
	case "active":
		if scanIface == "" {
			scanIface = cfg.GetString("scan.interface")
		}
		if scanIface == "" {
			return nil, nil, errors.New("scan.mac_resolution=active requires scan.interface")
		}
		resolver, err := recon.NewActiveResolver(scanIface, cfg.GetDuration("scan.ping_timeout"))
		if err != nil {
			logger.Warn("active ARP unavailable, using ARP table only",
				zap.String("interface", scanIface), zap.Error(err))
			break
		}
		proberOpts = append(proberOpts, recon.WithMACResolver(resolver))
		closer = resolver
	default:
		return nil, nil, fmt.Errorf("unknown scan.mac_resolution %q", mode)
	}

	prober := recon.NewHostProber(pinger, ports, recon.NewClassifier(), logger.Named("prober"), proberOpts...)

	scanOpts := []recon.ScannerOption{
		recon.WithARPSource(recon.NewProcARPSource()),
		recon.WithConcurrency(cfg.GetInt("scan.concurrency")),
		recon.WithMinPrefix(cfg.GetInt("scan.min_prefix")),
	}
	if cfg.GetBool("scan.mdns") {
		scanOpts = append(scanOpts, recon.WithHostnameSource(recon.NewMDNSResolver(logger.Named("mdns"), mdnsCacheTTL)))
	}
	return recon.NewScanner(prober, logger.Named("scanner"), scanOpts...), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}
