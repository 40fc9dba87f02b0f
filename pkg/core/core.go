// Package core implements the vault operations exposed to clients:
// listing vaults, running whitelisted commands, rendering vault trees, and
// reporting health. Transports translate its errors into protocol responses.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/go-units"
	"github.com/sameehj/vaultd/pkg/exec"
	"github.com/sameehj/vaultd/pkg/pathguard"
	"github.com/sameehj/vaultd/pkg/tree"
	"github.com/sameehj/vaultd/pkg/vault"
	"github.com/sameehj/vaultd/pkg/whitelist"
)

var (
	// ErrCommandNotAllowed is returned when the leading token is not whitelisted.
	ErrCommandNotAllowed = errors.New("command not whitelisted")
	// ErrInvalidArgument is returned for missing or malformed request fields.
	ErrInvalidArgument = errors.New("invalid argument")
)

// CommandNotAllowedError carries the rejected command and its leading token.
type CommandNotAllowedError struct {
	Command string
	Token   string
}

func (e *CommandNotAllowedError) Error() string {
	if e.Token == "" {
		return ErrCommandNotAllowed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCommandNotAllowed.Error(), e.Token)
}

func (e *CommandNotAllowedError) Unwrap() error {
	return ErrCommandNotAllowed
}

// Executor runs a command line inside a resolved vault directory.
type Executor interface {
	Run(ctx context.Context, dir, commandLine string) (*exec.Result, error)
}

// Service ties the registry, whitelist and executor together. It holds no
// mutable state, so calls may run concurrently.
type Service struct {
	registry    *vault.Registry
	whitelist   *whitelist.Whitelist
	executor    Executor
	authEnabled bool
	logger      *slog.Logger
}

// NewService builds a Service. authEnabled is only echoed in Health.
func NewService(registry *vault.Registry, wl *whitelist.Whitelist, executor Executor, authEnabled bool) *Service {
	return &Service{registry: registry, whitelist: wl, executor: executor, authEnabled: authEnabled}
}

func (s *Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// VaultNames returns the registered vault names.
func (s *Service) VaultNames() []string {
	return s.registry.Names()
}

// ListVaults reports every vault with a fresh accessibility probe.
func (s *Service) ListVaults() []vault.Summary {
	return s.registry.List()
}

// ExecuteBash checks the whitelist and runs command inside the named vault.
// Command failures, timeouts and truncation are carried by the Result.
func (s *Service) ExecuteBash(ctx context.Context, vaultName, command string) (*exec.Result, error) {
	if vaultName == "" || strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("%w: both 'vault' and 'command' are required", ErrInvalidArgument)
	}
	if _, err := s.registry.Resolve(vaultName); err != nil {
		return nil, err
	}
	if !s.whitelist.IsAllowed(command) {
		token, _ := whitelist.LeadingToken(command)
		s.logWarn("command_rejected", "vault", vaultName, "token", token)
		return nil, &CommandNotAllowedError{Command: command, Token: token}
	}
	dir, err := s.registry.Open(vaultName)
	if err != nil {
		return nil, err
	}

	s.logInfo("command_started", "vault", vaultName, "command", command)
	res, err := s.executor.Run(ctx, dir, command)
	if err != nil {
		if errors.Is(err, pathguard.ErrOutsideRoot) {
			s.logError("vault_containment_failed", "vault", vaultName, "error", err)
			return nil, fmt.Errorf("%w: %s", vault.ErrVaultNotAccessible, vaultName)
		}
		return res, err
	}
	s.logInfo("command_executed",
		"vault", vaultName,
		"exit_code", res.ExitStatus(),
		"duration", res.Duration,
		"truncated", res.Truncated,
		"stdout", units.HumanSize(float64(len(res.Stdout))),
	)
	return res, nil
}

// GetVaultTree renders the named vault.
func (s *Service) GetVaultTree(vaultName string, includeFiles bool) (string, error) {
	return s.VaultTree(vaultName, tree.Options{IncludeFiles: includeFiles})
}

// VaultTree renders the named vault with explicit tree options.
func (s *Service) VaultTree(vaultName string, opts tree.Options) (string, error) {
	if vaultName == "" {
		return "", fmt.Errorf("%w: 'vault' is required", ErrInvalidArgument)
	}
	dir, err := s.registry.Open(vaultName)
	if err != nil {
		return "", err
	}
	out, stats, err := tree.RenderWithOptions(dir, opts)
	if err != nil {
		s.logWarn("vault_tree_failed", "vault", vaultName, "error", err)
		return "", fmt.Errorf("%w: %s", vault.ErrVaultNotAccessible, vaultName)
	}
	s.logInfo("vault_tree",
		"vault", vaultName,
		"include_files", opts.IncludeFiles,
		"dirs", stats.Dirs,
		"files", stats.Files,
		"size", units.HumanSize(float64(stats.Bytes)),
	)
	return out, nil
}

// VaultHealth is the per-vault entry of a health report.
type VaultHealth struct {
	Path       string `json:"path"`
	Accessible bool   `json:"accessible"`
}

// HealthReport summarises service readiness.
type HealthReport struct {
	Status           string                 `json:"status"`
	Vaults           map[string]VaultHealth `json:"vaults"`
	WhitelistEnabled bool                   `json:"whitelist_enabled"`
	AuthEnabled      bool                   `json:"auth_enabled"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Healthy reports whether every vault is accessible.
func (h HealthReport) Healthy() bool {
	return h.Status == StatusHealthy
}

// Health probes every vault. The service is unhealthy when any vault is inaccessible.
func (s *Service) Health() HealthReport {
	report := HealthReport{
		Status:           StatusHealthy,
		Vaults:           make(map[string]VaultHealth),
		WhitelistEnabled: s.whitelist.Enabled(),
		AuthEnabled:      s.authEnabled,
	}
	for _, v := range s.registry.List() {
		report.Vaults[v.Name] = VaultHealth{Path: v.Path, Accessible: v.Accessible}
		if !v.Accessible {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Service) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
