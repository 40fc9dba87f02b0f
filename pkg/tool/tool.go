package tool

import "context"

// Tool is one callable exposed to MCP clients.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	// Execute returns the text shown to the client. A returned error is a
	// client-visible failure, not a server fault.
	Execute(ctx context.Context, input map[string]interface{}) (string, error)
}

// Definition is the advertised shape of a tool.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func stringArg(input map[string]interface{}, key string) string {
	v, _ := input[key].(string)
	return v
}

func boolArg(input map[string]interface{}, key string, def bool) bool {
	switch v := input[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return def
}
