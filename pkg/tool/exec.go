package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sameehj/vaultd/pkg/core"
	"github.com/sameehj/vaultd/pkg/exec"
)

type ExecTool struct {
	service   *core.Service
	timeout   time.Duration
	maxOutput int
}

func (t *ExecTool) Name() string {
	return "execute_bash"
}

func (t *ExecTool) Description() string {
	return "Execute a bash command in a vault directory. Available vaults: " + vaultList(t.service)
}

func (t *ExecTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"vault": map[string]string{
				"type":        "string",
				"description": "Name of the vault to execute command in. Options: " + vaultList(t.service),
			},
			"command": map[string]string{
				"type":        "string",
				"description": "Bash command to execute (will run in vault directory)",
			},
		},
		"required": []string{"vault", "command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	vaultName := stringArg(input, "vault")
	command := stringArg(input, "command")
	if vaultName == "" || command == "" {
		return "", errors.New("both 'vault' and 'command' parameters are required")
	}

	res, err := t.service.ExecuteBash(ctx, vaultName, command)
	if err != nil {
		return "", describeError(t.service, err)
	}
	return t.format(res), nil
}

func (t *ExecTool) format(res *exec.Result) string {
	output := res.Stdout
	if res.Stderr != "" {
		output += "\n--- stderr ---\n" + res.Stderr
	}

	var b strings.Builder
	if res.Truncated {
		fmt.Fprintf(&b, "[Output was truncated to %d characters]\n\n", t.maxOutput)
	}
	if res.Success() {
		b.WriteString(output)
		return b.String()
	}

	switch {
	case res.TimedOut:
		fmt.Fprintf(&b, "Command failed: Command timed out after %s\n", t.timeout)
	case res.SpawnError != "":
		fmt.Fprintf(&b, "Command failed: %s\n", res.SpawnError)
	default:
		fmt.Fprintf(&b, "Command failed: Command exited with code %d\n", res.ExitCode)
	}
	if output != "" {
		b.WriteString("\nOutput:\n")
		b.WriteString(output)
	}
	return b.String()
}
