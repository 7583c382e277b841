// Command edgescan discovers devices on local subnets, keeps the operator's
// monitoring selection and publishes it as a health-check configuration.
package main

import (
	"fmt"
	"os"

	"github.com/HerbHall/edgescan/internal/version"
)

const usage = `usage: edgescan <command> [flags]

commands:
  serve     run the scanner, API and config publisher (default)
  scan      sweep subnets once and print the results as JSON
  backup    archive the database and config files
  restore   restore files from a backup archive
  version   print version information
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "scan":
		err = runScan(args)
	case "backup":
		err = runBackup(args)
	case "restore":
		err = runRestore(args)
	case "version":
		fmt.Println(version.Info())
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}
