package tool

import (
	"context"
	"encoding/json"

	"github.com/sameehj/vaultd/pkg/core"
)

type ListVaultsTool struct {
	service *core.Service
}

func (t *ListVaultsTool) Name() string {
	return "list_vaults"
}

func (t *ListVaultsTool) Description() string {
	return "List configured vaults with their paths and accessibility"
}

func (t *ListVaultsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListVaultsTool) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(t.service.ListVaults(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
