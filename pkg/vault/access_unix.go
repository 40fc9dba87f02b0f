//go:build !windows

package vault

import "golang.org/x/sys/unix"

func readable(path string) bool {
	return unix.Access(path, unix.R_OK|unix.X_OK) == nil
}
