package orchestrator

import (
	"os"
	"os/exec"
	"syscall"
)

// exitSignal extracts the terminating signal number from state, or 0 if the
// child exited normally.
func exitSignal(state *os.ProcessState) int {
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0
	}
	return int(status.Signal())
}

// setCredential arranges for cmd's child to run as uid/gid, used to drop
// root privileges acquired via sudo before exec'ing the target command.
func setCredential(cmd *exec.Cmd, uid, gid uint32) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{Uid: uid, Gid: gid}
}
