package morierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCodePolicyInvalidIsTwo(t *testing.T) {
	err := New(KindPolicyInvalid, "validate policy", "bad path")
	require.Equal(t, 2, ExitCode(err))
}

func TestExitCodeOtherKindsAreOne(t *testing.T) {
	for _, kind := range []Kind{KindCgroupConflict, KindCgroupBusy, KindFilterLoad, KindMapUpdate, KindDNSFailure, KindChildSpawn, KindIO} {
		err := New(kind, "op", "reason")
		require.Equal(t, 1, ExitCode(err), "kind %s should map to exit code 1", kind)
	}
}

func TestExitCodeNilIsZero(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
}

func TestChildExitCodeNormalExit(t *testing.T) {
	require.Equal(t, 3, ChildExitCode(3, false, 0))
}

func TestChildExitCodeSignaled(t *testing.T) {
	require.Equal(t, 128+9, ChildExitCode(0, true, 9))
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	inner := New(KindDNSFailure, "resolve domain", "example.com")
	wrapped := fmt.Errorf("context: %w", inner)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, KindDNSFailure, kind)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(KindIO, "enroll process in cgroup", cause)
	require.ErrorIs(t, err, cause)
}

func TestErrorMessageFormatting(t *testing.T) {
	err := WrapReason(KindFilterLoad, "attach connect4 program", "capability CAP_BPF required", errors.New("permission denied"))
	require.Contains(t, err.Error(), "FilterLoad")
	require.Contains(t, err.Error(), "attach connect4 program")
	require.Contains(t, err.Error(), "capability CAP_BPF required")
	require.Contains(t, err.Error(), "permission denied")
}
