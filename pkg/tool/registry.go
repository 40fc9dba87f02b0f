package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sameehj/vaultd/pkg/core"
	"github.com/sameehj/vaultd/pkg/vault"
)

// ErrUnknownTool is returned by Call for names no tool answers to.
var ErrUnknownTool = errors.New("unknown tool")

// Limits are echoed back to clients in result messages.
type Limits struct {
	Timeout   time.Duration
	MaxOutput int
}

// Registry holds the tools in advertisement order.
type Registry struct {
	tools []Tool
	index map[string]Tool
}

func NewRegistry(service *core.Service, limits Limits) *Registry {
	r := &Registry{index: make(map[string]Tool)}
	r.Register(&ExecTool{service: service, timeout: limits.Timeout, maxOutput: limits.MaxOutput})
	r.Register(&TreeTool{service: service})
	r.Register(&ListVaultsTool{service: service})
	return r
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.index[t.Name()]; !exists {
		r.tools = append(r.tools, t)
	}
	r.index[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.index[name]
}

func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return defs
}

// Call runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, input map[string]interface{}) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	return t.Execute(ctx, input)
}

func vaultList(service *core.Service) string {
	return strings.Join(service.VaultNames(), ", ")
}

// describeError rewrites core errors into the messages clients see. Host
// paths never appear in them.
func describeError(service *core.Service, err error) error {
	var notAllowed *core.CommandNotAllowedError
	switch {
	case errors.Is(err, vault.ErrUnknownVault):
		return fmt.Errorf("%w. Available vaults: %s", err, vaultList(service))
	case errors.As(err, &notAllowed):
		return fmt.Errorf("command not whitelisted: %q is not an allowed command. Set WHITELIST_ENABLED=false to disable the whitelist", notAllowed.Token)
	case errors.Is(err, context.Canceled):
		return errors.New("request cancelled")
	}
	return err
}
