package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/HerbHall/edgescan/internal/backup"
	"github.com/HerbHall/edgescan/internal/config"
)

func runRestore(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	input := fs.String("input", "", "backup archive to restore (required)")
	configPath := fs.String("config", "", "path to configuration file")
	dataDir := fs.String("data-dir", "", "target directory (default: data_dir from configuration)")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		fs.Usage()
		return errors.New("--input is required")
	}

	target := *dataDir
	if target == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		target = cfg.GetString("data_dir")
	}

	files, err := backup.Restore(context.Background(), *input, target, *force)
	if errors.Is(err, backup.ErrExists) {
		return fmt.Errorf("%w (rerun with --force to overwrite)", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Restored %s into %s\n", strings.Join(files, ", "), target)
	return nil
}
