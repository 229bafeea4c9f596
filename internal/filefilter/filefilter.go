// Package filefilter is the filesystem filter handle of spec.md §3/§4.7: it
// loads and attaches the sleepable lsm/file_open program, scopes it to this
// invocation's cgroup, and exclusively owns mutation of the in-kernel
// FileDenySet. Grounded on adapters/linux/adapter.go's
// StartBlockerProgram/BlockPath (cilium/ebpf link.AttachLSM + ebpf.Map.Put),
// adapted from a global deny-set to a cgroup-scoped one per spec.md §4.7,
// and on original_source/src/runtime/linux/ebpf.rs's FileEbpf (set_scope,
// deny_path).
package filefilter

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"mori/internal/bpfobjs"
	"mori/internal/morierr"
	"mori/internal/policy"
)

const pathKeyLen = 256

// Handle owns the loaded eBPF objects and the LSM attachment.
type Handle struct {
	objs bpfobjs.MoriObjects
	link link.Link
}

// LoadAndAttach loads mori's eBPF object (shared with internal/netfilter's
// program set; bpf2go emits one collection per spec.md §6) and attaches the
// sleepable file_open LSM program.
func LoadAndAttach() (*Handle, error) {
	var objs bpfobjs.MoriObjects
	if err := bpfobjs.LoadMoriObjects(&objs, nil); err != nil {
		return nil, morierr.WrapReason(morierr.KindFilterLoad, "load file filter objects", "missing kernel feature or insufficient capability", err)
	}

	l, err := link.AttachLSM(link.LSMOptions{Program: objs.PathOpen})
	if err != nil {
		_ = objs.Close()
		reason := "requires a CONFIG_BPF_LSM kernel with bpf in lsm="
		if morierr.IsUnsupported(err) {
			reason = "kernel does not support the bpf lsm hook: " + reason
		}
		return nil, morierr.WrapReason(morierr.KindFilterLoad, "attach file_open lsm program", reason, err)
	}

	return &Handle{objs: objs, link: l}, nil
}

// SetScope writes cgroupID into TARGET_CGROUP so the kernel program only
// enforces the deny-set against this invocation's processes, per spec.md
// §4.7 step 1.
func (h *Handle) SetScope(cgroupID uint64) error {
	var zero uint32
	if err := h.objs.TargetCgroup.Put(zero, cgroupID); err != nil {
		return morierr.WrapReason(morierr.KindMapUpdate, "set file filter scope", "", err)
	}
	return nil
}

// Deny writes path (already-canonicalized per policy.canonicalizePath) into
// DENY_PATHS with the given access mode mask. Idempotent: re-denying an
// existing path ORs in the new mode bits.
func (h *Handle) Deny(path string, mode policy.AccessMode) error {
	key, err := pathKey(path)
	if err != nil {
		return morierr.WrapReason(morierr.KindPolicyInvalid, "deny path", path, err)
	}

	var existing uint8
	if err := h.objs.DenyPaths.Lookup(key, &existing); err != nil && err != ebpf.ErrKeyNotExist {
		return morierr.WrapReason(morierr.KindMapUpdate, "read existing deny entry", path, err)
	}

	combined := existing | uint8(mode)
	if err := h.objs.DenyPaths.Put(key, combined); err != nil {
		return morierr.WrapReason(morierr.KindMapUpdate, "deny path", path, err)
	}
	return nil
}

// Close detaches the file_open program and releases the map.
func (h *Handle) Close() error {
	var firstErr error
	if err := h.link.Close(); err != nil {
		firstErr = morierr.WrapReason(morierr.KindFilterLoad, "detach file_open program", "", err)
	}
	if err := h.objs.Close(); err != nil && firstErr == nil {
		firstErr = morierr.WrapReason(morierr.KindFilterLoad, "close file filter objects", "", err)
	}
	return firstErr
}

// pathKey renders path into the fixed-width, NUL-padded key DENY_PATHS
// expects, per spec.md §6. Paths longer than the key width are rejected
// (policy.AddFileRule enforces the same maxDenyPathBytes bound up front).
func pathKey(path string) ([pathKeyLen]byte, error) {
	var key [pathKeyLen]byte
	if len(path) >= pathKeyLen {
		return key, errPathTooLong(path)
	}
	copy(key[:], path)
	return key, nil
}

type errPathTooLong string

func (e errPathTooLong) Error() string { return "path exceeds kernel key width: " + string(e) }
