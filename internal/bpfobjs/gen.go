// Package bpfobjs holds the bpf2go-generated bindings for mori's kernel
// filter programs (bpf/mori.bpf.c), matching the ABI spec.md §6 describes.
//
// Regenerate with `go generate ./...` after editing bpf/mori.bpf.c (requires
// clang and the kernel headers bpf2go needs; see the teacher's own
// adapters/linux/adapter.go, which carries the equivalent directives for
// blocker.bpf.c and network.bpf.c without checking in their generated
// output either). The generated file defines:
//
//	type MoriObjects struct {
//		ConnectFilter *ebpf.Program `ebpf:"mori_connect4"`
//		PathOpen      *ebpf.Program `ebpf:"mori_path_open"`
//		AllowV4       *ebpf.Map     `ebpf:"ALLOW_V4"`
//		TargetCgroup  *ebpf.Map     `ebpf:"TARGET_CGROUP"`
//		DenyPaths     *ebpf.Map     `ebpf:"DENY_PATHS"`
//		PathScratch   *ebpf.Map     `ebpf:"PATH_SCRATCH"`
//	}
//
//	func (o *MoriObjects) Close() error
//	func LoadMoriObjects(obj *MoriObjects, opts *ebpf.CollectionOptions) error
package bpfobjs

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -type Mori Mori ../../bpf/mori.bpf.c -- -I../../bpf
