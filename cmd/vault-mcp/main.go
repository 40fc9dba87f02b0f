package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sameehj/vaultd/pkg/app"
	"github.com/sameehj/vaultd/pkg/config"
	"github.com/sameehj/vaultd/pkg/env"
	"github.com/sameehj/vaultd/pkg/mcp"
	"github.com/sameehj/vaultd/pkg/runtime/logging"
	"github.com/spf13/pflag"
)

var cfgFile string

func main() {
	pflag.StringVar(&cfgFile, "config", "", "config file (default: ~/.vaultd/config.yaml)")
	pflag.Parse()

	if err := env.LoadFromDir("."); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// stdout carries protocol frames, so logs go to stderr.
	logger, closer, err := logging.Open(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Path:    cfg.Log.Path,
		Console: os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}
	server := mcp.NewServer(a.Tools)
	server.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("vault_mcp_started", "vaults", a.Vaults.Len(), "whitelist_enabled", a.Whitelist.Enabled())
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error("stdio_failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
	logger.Info("vault_mcp_stopped")
}
