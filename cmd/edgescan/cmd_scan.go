package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HerbHall/edgescan/internal/config"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/pkg/models"
)

// scanReport is the JSON printed by the scan command.
type scanReport struct {
	Subnets  []string               `json:"subnets"`
	Probed   int                    `json:"probed"`
	Count    int                    `json:"count"`
	Devices  []models.Device        `json:"devices"`
	Warnings []models.SubnetWarning `json:"warnings,omitempty"`
}

// runScan sweeps once and prints the results without touching the registry.
func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	var subnets stringList
	fs.Var(&subnets, "subnet", "subnet to scan in CIDR form (repeatable, default: configured or local subnets)")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner, closer, err := buildScanner(cfg, "", logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(subnets) == 0 {
		subnets = subnetSource(cfg, services.NewInterfaceService(), logger)()
	}
	if len(subnets) == 0 {
		return fmt.Errorf("no subnets to scan: pass --subnet or set scan.subnets")
	}

	out := scanner.Scan(ctx, subnets)
	report := scanReport{
		Subnets:  subnets,
		Probed:   out.Probed,
		Count:    len(out.Devices),
		Devices:  out.Devices,
		Warnings: out.Warnings,
	}
	if report.Devices == nil {
		report.Devices = []models.Device{}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
