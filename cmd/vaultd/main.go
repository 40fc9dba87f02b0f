package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docker/go-units"
	"github.com/sameehj/vaultd/pkg/app"
	"github.com/sameehj/vaultd/pkg/config"
	"github.com/sameehj/vaultd/pkg/env"
	"github.com/sameehj/vaultd/pkg/gateway"
	"github.com/sameehj/vaultd/pkg/mcp"
	"github.com/sameehj/vaultd/pkg/runtime/logging"
	"github.com/sameehj/vaultd/pkg/tree"
	"github.com/sameehj/vaultd/pkg/version"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := env.LoadFromDir("."); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultd",
		Short:         "Sandboxed shell access to note vaults over MCP",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.vaultd/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(vaultsCmd())
	root.AddCommand(treeCmd())
	root.AddCommand(execCmd())
	root.AddCommand(healthCmd())
	root.AddCommand(whitelistCmd())
	root.AddCommand(versionCmd())
	return root
}

// loadApp builds an app for one-shot subcommands, which do not log.
func loadApp() (*app.App, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, nil)
}

func serveCmd() *cobra.Command {
	var addr string
	var healthAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over HTTP with /health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			logger, closer, err := logging.Open(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Path:   cfg.Log.Path,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("startup_failed", "error", err)
				return err
			}

			if addr == "" {
				addr = cfg.ListenAddr()
			}
			if healthAddr == "" {
				healthAddr = cfg.MCP.GRPCHealthAddr
			}

			mcpServer := mcp.NewServer(a.Tools)
			mcpServer.SetLogger(logger)
			gw := gateway.NewServer(a.Service, mcpServer, gateway.Options{
				Addr:       addr,
				HealthAddr: healthAddr,
				Authorizer: gateway.NewAuthorizer(cfg.MCP.Auth.Enabled, cfg.MCP.Auth.Token),
			})
			gw.SetLogger(logger)

			logger.Info("vaultd_starting",
				"version", version.Version,
				"addr", addr,
				"vaults", strings.Join(a.Vaults.Names(), ","),
				"whitelist_enabled", a.Whitelist.Enabled(),
				"whitelist_commands", a.Whitelist.Len(),
				"auth_enabled", cfg.MCP.Auth.Enabled,
				"timeout", a.Executor.Timeout,
				"max_output", a.Executor.MaxOutput,
			)
			if !cfg.MCP.Auth.Enabled {
				logger.Warn("auth_disabled", "addr", addr)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := gw.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("gateway_failed", "error", err)
				return err
			}
			logger.Info("vaultd_stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: MCP_HOST:MCP_PORT)")
	cmd.Flags().StringVar(&healthAddr, "grpc-health-addr", "", "gRPC health listen address")
	return cmd
}

func vaultsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "vaults",
		Short: "List configured vaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			list := a.Service.ListVaults()
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}
			for _, v := range list {
				status := "accessible"
				if !v.Accessible {
					status = "inaccessible"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", v.Name, status, v.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func treeCmd() *cobra.Command {
	var dirsOnly bool
	var summary bool
	var depth int

	cmd := &cobra.Command{
		Use:   "tree VAULT",
		Short: "Print the directory tree of a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			out, err := a.Service.VaultTree(args[0], tree.Options{
				IncludeFiles: !dirsOnly,
				MaxDepth:     depth,
				Summary:      summary,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dirsOnly, "dirs-only", false, "omit files")
	cmd.Flags().BoolVar(&summary, "summary", false, "append directory and file counts")
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum depth (0 = unlimited)")
	return cmd
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec VAULT -- COMMAND...",
		Short: "Run a whitelisted command inside a vault",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			res, err := a.Service.ExecuteBash(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
			if res.Truncated {
				fmt.Fprintf(cmd.ErrOrStderr(), "[output truncated to %d characters]\n", a.Executor.MaxOutput)
			}
			switch {
			case res.TimedOut:
				return fmt.Errorf("command timed out after %s", a.Executor.Timeout)
			case res.SpawnError != "":
				return errors.New(res.SpawnError)
			case !res.Success():
				return fmt.Errorf("command exited with code %d", res.ExitCode)
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every vault and print a health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			report := a.Service.Health()
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Healthy() {
				return errors.New("one or more vaults are inaccessible")
			}
			return nil
		},
	}
}

func whitelistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whitelist",
		Short: "Show the allowed commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !a.Whitelist.Enabled() {
				fmt.Fprintln(out, "whitelist disabled: every command is allowed")
				return nil
			}
			info, err := os.Stat(a.Config.Whitelist.Path)
			if err == nil {
				fmt.Fprintf(out, "# %s (%s, %d commands)\n", a.Config.Whitelist.Path, units.HumanSize(float64(info.Size())), a.Whitelist.Len())
			}
			for _, c := range a.Whitelist.Commands() {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), version.Get())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
