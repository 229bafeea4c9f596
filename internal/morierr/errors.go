// Package morierr defines mori's error taxonomy and the exit-code mapping
// described in spec.md §6/§7.
package morierr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind identifies exactly one of the error kinds spec.md §7 enumerates.
type Kind int

const (
	// KindPolicyInvalid marks a purely user-input derived failure that
	// surfaces before any side effect.
	KindPolicyInvalid Kind = iota
	// KindCgroupConflict marks a cgroup create failure (name collision).
	KindCgroupConflict
	// KindCgroupBusy marks a cgroup destroy failure (a process is still
	// enrolled).
	KindCgroupBusy
	// KindFilterLoad marks a failure loading or attaching a kernel
	// program.
	KindFilterLoad
	// KindMapUpdate marks an in-kernel map mutation failure.
	KindMapUpdate
	// KindDNSFailure marks a permanent DNS resolution failure for a
	// domain.
	KindDNSFailure
	// KindChildSpawn marks a fork/exec failure for the target command.
	KindChildSpawn
	// KindIO marks any other OS failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindPolicyInvalid:
		return "PolicyInvalid"
	case KindCgroupConflict:
		return "CgroupConflict"
	case KindCgroupBusy:
		return "CgroupBusy"
	case KindFilterLoad:
		return "FilterLoad"
	case KindMapUpdate:
		return "MapUpdate"
	case KindDNSFailure:
		return "DnsFailure"
	case KindChildSpawn:
		return "ChildSpawn"
	case KindIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error is the single error type mori produces. Op and Reason carry the
// component-identifying context spec.md §7 requires in diagnostics; Err
// wraps the underlying cause, if any.
type Error struct {
	Kind   Kind
	Op     string // component/operation that failed, e.g. "attach file filter"
	Reason string // human-readable detail, e.g. "capability CAP_BPF required"
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" && e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Reason)
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap constructs an *Error around a lower-level cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapReason constructs an *Error with both a reason and a wrapped cause.
func WrapReason(kind Kind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// KindOf extracts the Kind of err, if err is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var merr *Error
	if ok := asError(err, &merr); ok {
		return merr.Kind, true
	}
	return 0, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ExitCode maps a setup-phase error to the process exit code spec.md §6
// mandates: 2 for PolicyInvalid, 1 for any other mori failure before the
// child is spawned.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := KindOf(err); ok && kind == KindPolicyInvalid {
		return 2
	}
	return 1
}

// IsUnsupported reports whether err is, or wraps, a kernel-reported
// "operation not supported" failure — the case where the running kernel
// lacks a feature mori's filters depend on (e.g. CONFIG_BPF_LSM absent, or
// bpf missing from the lsm= boot parameter) rather than a policy or
// permission error.
func IsUnsupported(err error) bool {
	return errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTSUP)
}

// ChildExitCode maps a completed child's exit status (its exit code, or the
// signal that terminated it) to mori's own exit code: the child's status on
// normal termination, or 128+signal on signal-termination, per spec.md §6.
func ChildExitCode(exitCode int, signaled bool, signal int) int {
	if signaled {
		return 128 + signal
	}
	return exitCode
}
