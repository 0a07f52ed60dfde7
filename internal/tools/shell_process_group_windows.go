//go:build windows

package tools

import (
	"os/exec"
	"syscall"
)

// Process groups are not used on Windows; cancellation kills the shell only.
func configureProcessGroup(cmd *exec.Cmd) {
	_ = cmd
}

func getProcessGroupID(cmd *exec.Cmd) int {
	return 0
}

func signalProcessGroup(pgid int, sig syscall.Signal) error {
	_ = pgid
	_ = sig
	return syscall.EWINDOWS
}
