package tool

import (
	"context"
	"errors"

	"github.com/sameehj/vaultd/pkg/core"
)

type TreeTool struct {
	service *core.Service
}

func (t *TreeTool) Name() string {
	return "get_vault_tree"
}

func (t *TreeTool) Description() string {
	return "Get directory tree structure of a vault. Available vaults: " + vaultList(t.service)
}

func (t *TreeTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"vault": map[string]interface{}{
				"type":        "string",
				"description": "Name of the vault. Options: " + vaultList(t.service),
			},
			"include_files": map[string]interface{}{
				"type":        "boolean",
				"description": "Include files in tree (true) or only directories (false)",
				"default":     true,
			},
		},
		"required": []string{"vault"},
	}
}

func (t *TreeTool) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	vaultName := stringArg(input, "vault")
	if vaultName == "" {
		return "", errors.New("'vault' parameter is required")
	}
	out, err := t.service.GetVaultTree(vaultName, boolArg(input, "include_files", true))
	if err != nil {
		return "", describeError(t.service, err)
	}
	return out, nil
}
