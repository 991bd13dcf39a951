package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/PEAXdata/EFA-datapipeline/internal/ledger"
	"github.com/PEAXdata/EFA-datapipeline/pkg/efasync"
)

func main() {
	// Credentials may live in a local .env during development; absence is
	// fine in production where the environment is injected.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "ledger":
		err = ledgerCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "efa-sync %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to the sync configuration file")
	verbose := fs.Bool("v", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	p, err := efasync.Conf(*cfgPath, efasync.WithLogger(log))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to the configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := efasync.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func ledgerCommand(args []string) error {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to the sync configuration file")
	list := fs.Bool("list", false, "Print every synced order id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := efasync.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}

	done, err := ledger.Load(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d order ids synced\n", cfg.Ledger.Path, len(done))
	if *list {
		ids := make([]string, 0, len(done))
		for id := range done {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Println(id)
		}
	}
	return nil
}

func printUsage() {
	fmt.Printf(`efa-sync

Usage:
  efa-sync <command> [flags]

Commands:
  run        Execute one synchronization pass
  validate   Load and validate a config file without running
  ledger     Show the synced-order-id ledger

Examples:
  efa-sync run -config ./config.yaml
  efa-sync validate -config ./config.yaml
  efa-sync ledger -config ./config.yaml -list
`)
}
