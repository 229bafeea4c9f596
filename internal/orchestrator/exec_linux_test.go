package orchestrator

import (
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitSignalZeroOnNormalExit(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 7")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	require.Equal(t, 0, exitSignal(exitErr.ProcessState))
	require.Equal(t, 7, exitErr.ProcessState.ExitCode())
}

func TestExitSignalReportsKillingSignal(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "kill -TERM $$; sleep 1")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	require.Equal(t, int(syscall.SIGTERM), exitSignal(exitErr.ProcessState))
}

func TestSetCredentialPopulatesSysProcAttr(t *testing.T) {
	cmd := exec.Command("/bin/true")
	setCredential(cmd, 1000, 1000)
	require.NotNil(t, cmd.SysProcAttr)
	require.NotNil(t, cmd.SysProcAttr.Credential)
	require.Equal(t, uint32(1000), cmd.SysProcAttr.Credential.Uid)
}
