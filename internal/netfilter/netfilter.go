// Package netfilter is the network filter handle of spec.md §3/§4.6: it
// loads and attaches the connect4 cgroup-sock-addr program and exclusively
// owns mutation of the in-kernel NetworkAllowSet. Grounded on
// adapters/linux/adapter.go's StartNetworkBlocker/AllowIP (cilium/ebpf
// link.AttachTCX + ebpf.Map.Put), adapted from a TCX-egress-on-interface
// attachment to a cgroup-scoped connect4 attachment per spec.md §4.6, and
// on original_source/src/runtime/linux/ebpf.rs's NetworkEbpf (allow_ipv4,
// allow_cidr, remove_ipv4).
package netfilter

import (
	"encoding/binary"
	"net"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"

	"mori/internal/bpfobjs"
	"mori/internal/morierr"
)

// Handle owns the loaded eBPF objects and the cgroup attachment. Dropping
// it (Close) detaches the program and releases the map, which per spec.md
// §4.6 must precede destroying the cgroup directory.
type Handle struct {
	objs bpfobjs.MoriObjects
	link link.Link
}

var rlimitOnce = rlimitRemover{}

type rlimitRemover struct{ done bool }

func (r *rlimitRemover) ensure() error {
	if r.done {
		return nil
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return err
	}
	r.done = true
	return nil
}

// LoadAndAttach loads mori's eBPF object and attaches the connect4 program
// to the cgroup directory at cgroupPath, per spec.md §4.6.
func LoadAndAttach(cgroupPath string) (*Handle, error) {
	if err := rlimitOnce.ensure(); err != nil {
		return nil, morierr.WrapReason(morierr.KindFilterLoad, "remove memlock rlimit", "", err)
	}

	var objs bpfobjs.MoriObjects
	if err := bpfobjs.LoadMoriObjects(&objs, nil); err != nil {
		return nil, morierr.WrapReason(morierr.KindFilterLoad, "load network filter objects", "missing kernel feature or insufficient capability", err)
	}

	l, err := link.AttachCgroup(link.CgroupOptions{
		Path:    cgroupPath,
		Attach:  ebpf.AttachCGroupInet4Connect,
		Program: objs.ConnectFilter,
	})
	if err != nil {
		_ = objs.Close()
		return nil, morierr.WrapReason(morierr.KindFilterLoad, "attach connect4 program", "capability CAP_BPF required", err)
	}

	return &Handle{objs: objs, link: l}, nil
}

// InsertIPv4 idempotently writes addr into the NetworkAllowSet.
func (h *Handle) InsertIPv4(addr string) error {
	key, err := keyOf(addr)
	if err != nil {
		return morierr.WrapReason(morierr.KindPolicyInvalid, "insert network allow entry", addr, err)
	}
	if err := h.objs.AllowV4.Put(key, uint8(1)); err != nil {
		return morierr.WrapReason(morierr.KindMapUpdate, "insert network allow entry", addr, err)
	}
	return nil
}

// RemoveIPv4 idempotently removes addr from the NetworkAllowSet.
func (h *Handle) RemoveIPv4(addr string) error {
	key, err := keyOf(addr)
	if err != nil {
		return morierr.WrapReason(morierr.KindPolicyInvalid, "remove network allow entry", addr, err)
	}
	if err := h.objs.AllowV4.Delete(key); err != nil && err != ebpf.ErrKeyNotExist {
		return morierr.WrapReason(morierr.KindMapUpdate, "remove network allow entry", addr, err)
	}
	return nil
}

// InsertCIDR iterates the (<=256, prefix>=24) addresses of cidr and inserts
// each into the NetworkAllowSet, per spec.md §4.6.
func (h *Handle) InsertCIDR(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return morierr.WrapReason(morierr.KindPolicyInvalid, "expand cidr", cidr, err)
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return morierr.New(morierr.KindPolicyInvalid, "expand cidr", "not an IPv4 network: "+cidr)
	}
	base := ipnet.IP.To4()
	baseInt := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	count := 1 << uint(32-ones)
	for i := 0; i < count; i++ {
		v := baseInt + uint32(i)
		ip := net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).To4()
		if err := h.InsertIPv4(ip.String()); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches the connect4 program and releases the map. Must be called
// before the cgroup directory is destroyed (spec.md §4.6).
func (h *Handle) Close() error {
	var firstErr error
	if err := h.link.Close(); err != nil {
		firstErr = morierr.WrapReason(morierr.KindFilterLoad, "detach connect4 program", "", err)
	}
	if err := h.objs.Close(); err != nil && firstErr == nil {
		firstErr = morierr.WrapReason(morierr.KindFilterLoad, "close network filter objects", "", err)
	}
	return firstErr
}

// keyOf converts an IPv4 dotted-quad string into the 4-byte network-order
// key ALLOW_V4 is keyed by: the uint32 is read in native byte order, so its
// in-memory bytes (what the map stores) are the address octets in order.
func keyOf(addr string) (uint32, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0, errInvalidIPv4(addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, errInvalidIPv4(addr)
	}
	return binary.NativeEndian.Uint32(v4), nil
}

type errInvalidIPv4 string

func (e errInvalidIPv4) Error() string { return "not an IPv4 address: " + string(e) }
