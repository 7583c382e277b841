package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/HerbHall/edgescan/internal/backup"
	"github.com/HerbHall/edgescan/internal/config"
)

func runBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	output := fs.String("output", "", "output file path (default: edgescan-backup-{timestamp}.tar.gz)")
	configPath := fs.String("config", "", "path to configuration file (also included in the archive)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if *output == "" {
		*output = fmt.Sprintf("edgescan-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	extra := []string{cfg.ConfigFileUsed(), cfg.GetString("healthcheck.path")}
	if cfg.GetString("registry.backend") == "json" {
		extra = append(extra, registryJSONPath(cfg))
	}
	if err := backup.Backup(context.Background(), databasePath(cfg), extra, *output); err != nil {
		return err
	}
	fmt.Printf("Backup created: %s\n", *output)
	return nil
}
