// Package cgroup manages the per-invocation cgroup v2 scope mori anchors
// its kernel filters to, spec.md §3/§4.5. Grounded on
// original_source/src/runtime/linux/cgroup.rs's CgroupManager, translated
// from std::fs to golang.org/x/sys/unix so the directory fd can be held
// open (BorrowedFd equivalent) for the lifetime of the attached filters,
// the way adapters/linux/adapter.go holds onto its link.Link handles.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"mori/internal/morierr"
)

// UnifiedRoot is the conventional cgroup v2 mount point.
const UnifiedRoot = "/sys/fs/cgroup"

// Scope is the opaque kernel handle of spec.md §3: a fresh cgroup directory
// named "mori-<pid>" under the unified hierarchy, plus an open descriptor
// on it, used by ID. Kernel filter programs are attached through Path.
type Scope struct {
	Path string
	fd   int
}

// Create makes the cgroup directory for this invocation and opens an
// O_DIRECTORY descriptor on it. Fails with morierr.KindCgroupConflict if
// the name is already taken.
func Create() (*Scope, error) {
	name := fmt.Sprintf("mori-%d", os.Getpid())
	path := filepath.Join(UnifiedRoot, name)

	if err := unix.Mkdir(path, 0o755); err != nil {
		if err == unix.EEXIST {
			return nil, morierr.WrapReason(morierr.KindCgroupConflict, "create cgroup", path, err)
		}
		return nil, morierr.WrapReason(morierr.KindCgroupConflict, "create cgroup", path, err)
	}

	fd, err := unix.Open(path, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		_ = unix.Rmdir(path)
		return nil, morierr.WrapReason(morierr.KindCgroupConflict, "open cgroup directory", path, err)
	}

	return &Scope{Path: path, fd: fd}, nil
}

// ID returns the cgroup's identifying inode number, for populating the
// TargetCgroupMarker of spec.md §3/§4.7.
func (s *Scope) ID() (uint64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(s.fd, &stat); err != nil {
		return 0, morierr.WrapReason(morierr.KindIO, "stat cgroup directory", s.Path, err)
	}
	return uint64(stat.Ino), nil
}

// Enroll writes pid into cgroup.procs. Idempotent: re-enrolling an
// already-present pid is a no-op at the kernel level, per spec.md §4.5.
func (s *Scope) Enroll(pid int) error {
	procsPath := filepath.Join(s.Path, "cgroup.procs")
	f, err := os.OpenFile(procsPath, os.O_WRONLY, 0)
	if err != nil {
		return morierr.WrapReason(morierr.KindIO, "open cgroup.procs", procsPath, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		return morierr.WrapReason(morierr.KindIO, "enroll process in cgroup", procsPath, err)
	}
	return nil
}

// Destroy closes the directory descriptor and rmdir's the cgroup. Fails
// with morierr.KindCgroupBusy if a process is still enrolled, per spec.md
// §4.5 — the orchestrator must await child exit first.
func (s *Scope) Destroy() error {
	_ = unix.Close(s.fd)

	if err := unix.Rmdir(s.Path); err != nil {
		if err == unix.EBUSY {
			return morierr.WrapReason(morierr.KindCgroupBusy, "remove cgroup", s.Path, err)
		}
		return morierr.WrapReason(morierr.KindCgroupBusy, "remove cgroup", s.Path, err)
	}
	return nil
}
