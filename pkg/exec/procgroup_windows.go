//go:build windows

package exec

import (
	"os/exec"
	"time"
)

// Windows has no process groups reachable through os/exec; only the shell is killed.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 2 * time.Second
}

func killProcessGroup(cmd *exec.Cmd) {
	_ = cmd
}
