package exec

import (
	"os"
	"strings"
)

// baseEnv is forwarded to every command. Everything else, including service
// credentials such as MCP_AUTH_TOKEN, is dropped.
var baseEnv = []string{"PATH", "HOME", "USER", "LOGNAME", "LANG", "TZ", "TMPDIR", "TERM", "SYSTEMROOT", "COMSPEC", "PATHEXT"}

func commandEnv(dir string, extra []string) []string {
	keys := append(append([]string(nil), baseEnv...), extra...)
	env := make([]string, 0, len(keys)+4)
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LC_") {
			env = append(env, kv)
		}
	}
	return setEnv(env, "PWD", dir)
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
