package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 8080
	DefaultHost          = "0.0.0.0"
	DefaultTimeout       = "30s"
	DefaultMaxOutput     = 100000
	DefaultWhitelistPath = "whitelist.txt"
	DefaultLogPath       = "logs/vaultd.log"
)

// Config defines runtime settings for vaultd. It is built once at startup and
// handed to constructors; nothing reads it from global state.
type Config struct {
	Vaults    VaultsConfig    `yaml:"vaults"`
	MCP       MCPConfig       `yaml:"mcp"`
	Exec      ExecConfig      `yaml:"exec"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Log       LogConfig       `yaml:"log"`
}

type VaultsConfig struct {
	// Roots are scanned for immediate subdirectories, each becoming a vault.
	Roots []string `yaml:"roots"`
	// Named maps a vault name straight to a directory.
	Named map[string]string `yaml:"named"`
}

type MCPConfig struct {
	Host           string     `yaml:"host"`
	Port           int        `yaml:"port"`
	Auth           AuthConfig `yaml:"auth"`
	GRPCHealthAddr string     `yaml:"grpcHealthAddr"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type ExecConfig struct {
	Timeout   string   `yaml:"timeout"`
	MaxOutput int      `yaml:"maxOutput"`
	Shell     string   `yaml:"shell"`
	PassEnv   []string `yaml:"passEnv"`
}

type WhitelistConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		MCP: MCPConfig{Host: DefaultHost, Port: DefaultPort},
		Exec: ExecConfig{
			Timeout:   DefaultTimeout,
			MaxOutput: DefaultMaxOutput,
		},
		Whitelist: WhitelistConfig{Enabled: true, Path: DefaultWhitelistPath},
		Log:       LogConfig{Level: "info", Format: "json", Path: DefaultLogPath},
	}
}

// LoadConfig loads configuration from a YAML file and environment overrides,
// then validates it. An empty path falls back to DefaultConfigPath, which may
// be absent.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if roots := os.Getenv("VAULT_ROOTS"); roots != "" {
		c.Vaults.Roots = splitList(roots)
	}
	if vaults := os.Getenv("VAULTS"); vaults != "" {
		named := map[string]string{}
		if err := json.Unmarshal([]byte(vaults), &named); err != nil {
			return errors.New("VAULTS must be a valid JSON object mapping vault names to paths")
		}
		c.Vaults.Named = named
	}
	if host := os.Getenv("MCP_HOST"); host != "" {
		c.MCP.Host = host
	}
	if err := envInt("MCP_PORT", &c.MCP.Port); err != nil {
		return err
	}
	if err := envBool("MCP_AUTH_ENABLED", &c.MCP.Auth.Enabled); err != nil {
		return err
	}
	if token := os.Getenv("MCP_AUTH_TOKEN"); token != "" {
		c.MCP.Auth.Token = token
	}
	if addr := os.Getenv("GRPC_HEALTH_ADDR"); addr != "" {
		c.MCP.GRPCHealthAddr = addr
	}
	if timeout := os.Getenv("COMMAND_TIMEOUT"); timeout != "" {
		secs, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("COMMAND_TIMEOUT must be an integer number of seconds: %q", timeout)
		}
		c.Exec.Timeout = (time.Duration(secs) * time.Second).String()
	}
	if err := envInt("MAX_OUTPUT_SIZE", &c.Exec.MaxOutput); err != nil {
		return err
	}
	if err := envBool("WHITELIST_ENABLED", &c.Whitelist.Enabled); err != nil {
		return err
	}
	if path := os.Getenv("WHITELIST_PATH"); path != "" {
		c.Whitelist.Path = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if path, ok := os.LookupEnv("LOG_PATH"); ok {
		c.Log.Path = path
	}
	return nil
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	if len(c.Vaults.Roots) == 0 && len(c.Vaults.Named) == 0 {
		return errors.New("at least one vault root or named vault must be configured")
	}
	for _, root := range c.Vaults.Roots {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("vault root does not exist: %s", root)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault root is not a directory: %s", root)
		}
	}
	for name, path := range c.Vaults.Named {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("vault path does not exist: %s (vault: %s)", path, name)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s (vault: %s)", path, name)
		}
	}
	if c.MCP.Auth.Enabled && c.MCP.Auth.Token == "" {
		return errors.New("MCP_AUTH_TOKEN must be set when MCP_AUTH_ENABLED is true")
	}
	if c.MCP.Port <= 0 || c.MCP.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.MCP.Port)
	}
	timeout, err := time.ParseDuration(c.Exec.Timeout)
	if err != nil {
		return fmt.Errorf("invalid exec timeout %q: %w", c.Exec.Timeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("exec timeout must be positive: %s", c.Exec.Timeout)
	}
	if c.Exec.MaxOutput <= 0 {
		return fmt.Errorf("max output size must be positive: %d", c.Exec.MaxOutput)
	}
	if c.Whitelist.Enabled && c.Whitelist.Path == "" {
		return errors.New("whitelist path must be set when the whitelist is enabled")
	}
	return nil
}

// CommandTimeout returns the parsed exec timeout.
func (c *Config) CommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exec.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ListenAddr is the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.MCP.Host, c.MCP.Port)
}

// DefaultConfigPath returns the default location for the config file.
func DefaultConfigPath() string {
	if path := os.Getenv("VAULTD_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vaultd", "config.yaml")
}

func splitList(value string) []string {
	var out []string
	for _, part := range filepath.SplitList(value) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %q", key, value)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("%s must be true or false: %q", key, value)
	}
	return nil
}
