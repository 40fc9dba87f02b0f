// Package app wires a Config into the vault service graph. Both binaries
// start through New so the startup rules live in one place.
package app

import (
	"log/slog"

	"github.com/sameehj/vaultd/pkg/config"
	"github.com/sameehj/vaultd/pkg/core"
	"github.com/sameehj/vaultd/pkg/exec"
	"github.com/sameehj/vaultd/pkg/tool"
	"github.com/sameehj/vaultd/pkg/vault"
	"github.com/sameehj/vaultd/pkg/whitelist"
)

// App is the wired service graph.
type App struct {
	Config    *config.Config
	Vaults    *vault.Registry
	Whitelist *whitelist.Whitelist
	Executor  *exec.SafeExecutor
	Service   *core.Service
	Tools     *tool.Registry
}

// New builds the registry, whitelist, executor, service and tools from cfg.
// A whitelist that is enabled but unreadable is an error. A disabled
// whitelist is never read. logger may be nil.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	vaults, err := vault.NewRegistry(cfg.Vaults.Roots, cfg.Vaults.Named)
	if err != nil {
		return nil, err
	}

	whitelistPath := cfg.Whitelist.Path
	if !cfg.Whitelist.Enabled {
		whitelistPath = ""
	}
	allowed, err := whitelist.Load(whitelistPath, cfg.Whitelist.Enabled)
	if err != nil {
		return nil, err
	}

	executor := &exec.SafeExecutor{
		Roots:     vaults.Roots(),
		Timeout:   cfg.CommandTimeout(),
		MaxOutput: cfg.Exec.MaxOutput,
		Shell:     cfg.Exec.Shell,
		PassEnv:   cfg.Exec.PassEnv,
	}
	service := core.NewService(vaults, allowed, executor, cfg.MCP.Auth.Enabled)
	if logger != nil {
		executor.SetLogger(logger)
		service.SetLogger(logger)
	}

	return &App{
		Config:    cfg,
		Vaults:    vaults,
		Whitelist: allowed,
		Executor:  executor,
		Service:   service,
		Tools:     tool.NewRegistry(service, tool.Limits{Timeout: executor.Timeout, MaxOutput: executor.MaxOutput}),
	}, nil
}
