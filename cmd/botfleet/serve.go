package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/everydev1618/botfleet/serve"
)

// serveCmd starts the API server and the fleet supervisor.
func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	addr := fs.String("addr", "", "HTTP listen address (default :8000)")
	dbPath := fs.String("db", "", "SQLite database path (default botfleet.db)")
	filesDir := fs.String("files", "", "Upload directory (default files)")
	interval := fs.Duration("interval", 0, "Reconciliation interval (default 10s)")

	fs.Usage = func() {
		fmt.Println(`Usage: botfleet serve [options]

Run the HTTP API and keep one Telegram bot worker alive per configured
tenant. Flags override values from the config file. The JWT secret comes
from the config file or the BOTFLEET_JWT_SECRET environment variable.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  botfleet serve
  botfleet serve --config botfleet.yaml --addr :8080
  botfleet serve --db /var/lib/botfleet/botfleet.db --interval 30s`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var cfg serve.Config
	if *configPath != "" {
		var err error
		cfg, err = serve.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg.ApplyDefaults()
	}

	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *filesDir != "" {
		cfg.FilesDir = *filesDir
	}
	if *interval > 0 {
		cfg.ReconcileInterval = *interval
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("BOTFLEET_JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: no JWT secret configured (set jwt_secret or BOTFLEET_JWT_SECRET)")
		os.Exit(1)
	}

	srv := serve.New(cfg)

	// Signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Stopped after %s\n", time.Since(start).Round(time.Second))
}
