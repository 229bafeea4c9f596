// Package orchestrator wires together the cgroup, kernel filters, DNS
// resolver/cache, and child process to execute one confined invocation,
// spec.md §4.8/§4.9. Grounded on original_source/src/runtime/linux/mod.rs's
// execute_with_policy (cgroup create, conditional eBPF load, pre-exec
// cgroup enrollment via a pipe gate, DNS refresh task, teardown) and on
// original_source/src/runtime/linux/refresh.rs's spawn_refresh_thread,
// translated from a forked child + libc pipe rendezvous to Go's
// os/exec.Cmd with a SysProcAttr-free pre-start cgroup race fixed by
// starting the child stopped (via a wrapping shell read-gate) the way
// adapters/linux/adapter.go favors composing small OS primitives over
// hand-rolled syscalls.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"mori/internal/audit"
	"mori/internal/cgroup"
	"mori/internal/dnscache"
	"mori/internal/dnsresolver"
	"mori/internal/filefilter"
	"mori/internal/morierr"
	"mori/internal/netfilter"
	"mori/internal/policy"
	"mori/internal/shutdown"
)

// defaultRefreshInterval bounds how long the refresh task sleeps when the
// DNS cache holds no live entries yet, per spec.md §4.9 step 1.
const defaultRefreshInterval = 30 * time.Second

// Result is the outcome of one confined invocation.
type Result struct {
	// ExitCode is the child's own exit code, or 128+signal if a signal
	// terminated it (spec.md §6). When setup fails before the child starts,
	// Run returns a zero Result with the error; the caller maps the error
	// to an exit code (morierr.ExitCode).
	ExitCode int
}

// Logger is the subset of *log.Logger orchestrator needs, so tests can
// substitute a silent sink.
type Logger interface {
	Printf(format string, v ...any)
}

// networkAllowSet is the subset of netfilter.Handle the refresh task and
// static seeding logic need, so tests can substitute a fake instead of a
// real kernel map. Mirrors original_source/src/runtime/linux/ebpf.rs's
// EbpfController trait, which exists for the same reason.
type networkAllowSet interface {
	InsertIPv4(addr string) error
	RemoveIPv4(addr string) error
	InsertCIDR(cidr string) error
}

// Run executes command/args under pol, logging through logger (pass
// log.New(os.Stderr, "mori: ", log.LstdFlags) in production, matching
// cmd/core-service/main.go's default-logger texture). auditLog may be nil,
// in which case allow-set mutations are not recorded.
func Run(ctx context.Context, logger Logger, auditLog *audit.Logger, pol *policy.Policy, command string, args []string) (Result, error) {
	if err := pol.Validate(); err != nil {
		return Result{}, err
	}

	scope, err := cgroup.Create()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := scope.Destroy(); err != nil {
			logger.Printf("warning: failed to remove cgroup: %v", err)
		}
	}()

	needsNetworkFilter := pol.Network.Kind == policy.AllowList
	needsFileFilter := len(pol.File.Rules) > 0

	if !needsNetworkFilter && !needsFileFilter {
		logger.Printf("policy requires no kernel enforcement; running %s unconfined within cgroup %s", command, scope.Path)
		sc, err := startChild(scope, command, args)
		if err != nil {
			return Result{}, err
		}
		return waitChild(sc, command)
	}

	resolver := dnsresolver.NewSystemResolver()
	resolved, err := resolver.Resolve(ctx, pol.Network.Domains)
	if err != nil {
		return Result{}, err
	}

	var netHandle *netfilter.Handle
	cache := dnscache.New()
	refs := newAllowRefSet()

	if needsNetworkFilter {
		netHandle, err = netfilter.LoadAndAttach(scope.Path)
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if err := netHandle.Close(); err != nil {
				logger.Printf("warning: failed to detach network filter: %v", err)
			}
		}()

		if err := seedNetworkAllowSet(netHandle, pol.Network, logger, auditLog, refs); err != nil {
			return Result{}, err
		}

		diffs := resolveDiffs(cache, resolved.Domains, time.Now())
		refs.apply(netHandle, diffs, logger, auditLog)

		for _, ns := range resolved.Nameservers {
			if err := netHandle.InsertIPv4(ns); err != nil {
				return Result{}, err
			}
			logger.Printf("nameserver %s added to network allow list", ns)
			recordAudit(auditLog, audit.ActionInsert, ns, "nameserver")
			refs.protect(ns)
		}
	}

	var fileHandle *filefilter.Handle
	if needsFileFilter {
		fileHandle, err = filefilter.LoadAndAttach()
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if err := fileHandle.Close(); err != nil {
				logger.Printf("warning: failed to detach file filter: %v", err)
			}
		}()

		cgroupID, err := scope.ID()
		if err != nil {
			return Result{}, err
		}
		if err := fileHandle.SetScope(cgroupID); err != nil {
			return Result{}, err
		}
		for _, rule := range pol.File.Rules {
			if err := fileHandle.Deny(rule.Path, rule.Mode); err != nil {
				return Result{}, err
			}
			logger.Printf("denied %s access on %s", rule.Mode, rule.Path)
		}
	}

	sc, err := startChild(scope, command, args)
	if err != nil {
		return Result{}, err
	}

	if needsNetworkFilter && len(pol.Network.Domains) > 0 {
		shutdownSignal := shutdown.New()
		group, gctx := errgroup.WithContext(ctx)

		var result Result
		var waitErr error
		group.Go(func() error {
			defer shutdownSignal.Fire()
			result, waitErr = waitChild(sc, command)
			return nil
		})
		group.Go(func() error {
			return refreshLoop(gctx, shutdownSignal, resolver, cache, netHandle, refs, pol.Network.Domains, logger, auditLog)
		})
		if err := group.Wait(); err != nil {
			logger.Printf("warning: dns refresh task exited with error: %v", err)
		}
		return result, waitErr
	}

	return waitChild(sc, command)
}

// recordAudit writes one allow-set mutation record when auditLog is
// non-nil, and swallows the write error beyond a log line: a failure to
// persist an audit record must never abort the confined invocation itself.
func recordAudit(auditLog *audit.Logger, action audit.Action, ipv4, source string) {
	if auditLog == nil {
		return
	}
	_ = auditLog.Record(action, ipv4, source)
}

// allowRefSet reference-counts IPv4 addresses contributed by the DNS cache
// across all tracked domains, so one domain's refresh never removes an
// address another domain still resolves to, and marks addresses that come
// from outside the domain cache (static policy entries, CIDR-expanded
// addresses, localhost, nameservers) as permanently protected from
// domain-driven removal. Together these make the kernel allow-set the full
// union spec.md §4.9 invariant 4 requires: NetworkAllowSet = ⋃ over every
// domain's live cache entries, union static entries, union nameservers.
// Not safe for concurrent use; owned solely by the refresh task, the same
// invariant dnscache.Cache itself carries.
type allowRefSet struct {
	refs      map[string]int
	protected map[string]bool
}

func newAllowRefSet() *allowRefSet {
	return &allowRefSet{refs: make(map[string]int), protected: make(map[string]bool)}
}

// protect marks ip as never subject to removal by a domain's refresh diff.
func (s *allowRefSet) protect(ip string) {
	s.protected[ip] = true
}

// domainDiff pairs one domain's resolution diff with the audit source label
// mutations driven by it should be attributed to.
type domainDiff struct {
	source string
	diff   dnscache.Diff
}

// resolveDiffs feeds each resolved domain's current IPv4 set into cache,
// collecting every domain's diff before any of them are applied to the
// kernel, so allowRefSet.apply can see the whole cycle's additions and
// removals together.
func resolveDiffs(cache *dnscache.Cache, domains []dnsresolver.DomainRecords, now time.Time) []domainDiff {
	diffs := make([]domainDiff, 0, len(domains))
	for _, d := range domains {
		var entries []dnscache.Entry
		expiry := now.Add(d.TTL)
		for _, ip := range d.IPv4 {
			entries = append(entries, dnscache.Entry{IP: ip, ExpiresAt: expiry})
		}
		diffs = append(diffs, domainDiff{source: "domain:" + d.Domain, diff: cache.Set(d.Domain, now, entries)})
	}
	return diffs
}

// apply merges one refresh cycle's diffs into the kernel allow-set: every
// addition across every domain is inserted first, and a removed address is
// only actually dropped from the kernel once its reference count across all
// domains reaches zero and it isn't protected, per spec.md §4.9's
// insert-before-remove ordering and invariant 4's full-union membership.
func (s *allowRefSet) apply(h networkAllowSet, diffs []domainDiff, logger Logger, auditLog *audit.Logger) {
	for _, d := range diffs {
		for _, ip := range d.diff.Added {
			if s.refs[ip] == 0 {
				if err := h.InsertIPv4(ip); err != nil {
					logger.Printf("warning: failed to add %s to network allow list: %v", ip, err)
					continue
				}
				logger.Printf("resolved domain IPv4 %s added to allow list", ip)
				recordAudit(auditLog, audit.ActionInsert, ip, d.source)
			}
			s.refs[ip]++
		}
	}
	for _, d := range diffs {
		for _, ip := range d.diff.Removed {
			if s.protected[ip] || s.refs[ip] == 0 {
				continue
			}
			s.refs[ip]--
			if s.refs[ip] > 0 {
				continue
			}
			delete(s.refs, ip)
			if err := h.RemoveIPv4(ip); err != nil {
				logger.Printf("warning: failed to remove %s from network allow list: %v", ip, err)
				continue
			}
			logger.Printf("resolved domain IPv4 %s removed from allow list", ip)
			recordAudit(auditLog, audit.ActionRemove, ip, d.source)
		}
	}
}

// seedNetworkAllowSet inserts the statically-known allow entries (localhost,
// literal IPv4 addresses, CIDR ranges) before the child is spawned, per
// spec.md §4.8 step 4: domain-derived entries follow once DNS resolves.
// Every address inserted here is protected from the domain refresh's
// removal path, since it lives outside the DNS cache entirely.
func seedNetworkAllowSet(h networkAllowSet, np policy.NetworkPolicy, logger Logger, auditLog *audit.Logger, refs *allowRefSet) error {
	if err := h.InsertIPv4("127.0.0.1"); err != nil {
		return err
	}
	logger.Printf("127.0.0.1 (localhost) added to network allow list")
	recordAudit(auditLog, audit.ActionInsert, "127.0.0.1", "static")
	refs.protect("127.0.0.1")

	for _, ip := range np.IPv4 {
		if err := h.InsertIPv4(ip); err != nil {
			return err
		}
		logger.Printf("%s added to network allow list", ip)
		recordAudit(auditLog, audit.ActionInsert, ip, "static")
		refs.protect(ip)
	}
	for _, cidr := range np.CIDRs {
		if err := h.InsertCIDR(cidr); err != nil {
			return err
		}
		logger.Printf("%s added to network allow list", cidr)
		recordAudit(auditLog, audit.ActionInsert, cidr, "static")
		if addrs, err := policy.ExpandCIDR(cidr); err == nil {
			for _, addr := range addrs {
				refs.protect(addr.String())
			}
		}
	}
	return nil
}

// refreshLoop re-resolves domains on each TTL expiry until shutdown fires,
// per spec.md §4.9. Mirrors spawn_refresh_thread's loop; a resolution
// failure is logged and the loop continues (spec.md §4.9 step 3: "log and
// continue, do not terminate the task"). It runs concurrently with the
// child's lifetime (spec.md §4.8 step 9 precedes step 10), stopping once the
// child exit goroutine fires sig.
func refreshLoop(ctx context.Context, sig *shutdown.Signal, resolver dnsresolver.Resolver, cache *dnscache.Cache, h networkAllowSet, refs *allowRefSet, domains []string, logger Logger, auditLog *audit.Logger) error {
	for {
		sleepFor, ok := cache.NextRefreshIn(time.Now())
		if !ok {
			sleepFor = defaultRefreshInterval
		} else if sleepFor <= 0 {
			// An entry already due (e.g. left in place by a failed
			// resolution) is retried after MinTTL; WaitTimeout treats
			// d <= 0 as "wait for shutdown only".
			sleepFor = dnscache.MinTTL
		}
		if sig.WaitTimeout(sleepFor) {
			return nil
		}

		resolved, err := resolver.Resolve(ctx, domains)
		if err != nil {
			logger.Printf("failed to refresh dns records: %v", err)
			continue
		}

		diffs := resolveDiffs(cache, resolved.Domains, time.Now())
		refs.apply(h, diffs, logger, auditLog)

		for _, ns := range resolved.Nameservers {
			if err := h.InsertIPv4(ns); err != nil {
				logger.Printf("warning: failed to allow nameserver %s: %v", ns, err)
				continue
			}
			recordAudit(auditLog, audit.ActionInsert, ns, "nameserver")
			refs.protect(ns)
		}
	}
}

// startedChild is a child process that has been started, enrolled in the
// cgroup, and released from its pre-exec gate. Waiting on it (waitChild) is
// left to the caller so the DNS refresh task can run concurrently with the
// child's lifetime instead of only after it has already exited.
type startedChild struct {
	cmd *exec.Cmd
	pr  *os.File
}

// startChild spawns command under scope, blocking the child in its own
// shell wrapper until the parent has enrolled its pid in the cgroup. This
// resolves spec.md §9 Open Question 1 (the fork-before-exec race) without
// calling fork(2) directly: os/exec always forks-then-execs internally, so
// mori instead execs into a tiny shell gate that blocks on a read from an
// inherited pipe fd, and the parent closes the pipe's write end only after
// cgroup.procs has been written, exactly reproducing the pipe rendezvous
// original_source/src/runtime/linux/mod.rs's spawn_command implements with
// libc::pipe directly.
func startChild(scope *cgroup.Scope, command string, args []string) (*startedChild, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, morierr.WrapReason(morierr.KindChildSpawn, "create synchronization pipe", "", err)
	}

	cmd := exec.Command("/bin/sh", append([]string{"-c", "read -r _ <&3; exec \"$@\"", "mori-gate", command}, args...)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{pr}
	applyPrivilegeDrop(cmd)

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, morierr.WrapReason(morierr.KindChildSpawn, "start child process", command, err)
	}

	if err := scope.Enroll(cmd.Process.Pid); err != nil {
		pw.Close()
		pr.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return nil, err
	}

	pw.Close() // releases the child's read gate
	return &startedChild{cmd: cmd, pr: pr}, nil
}

// waitChild awaits a started child's exit and maps its terminal state to a
// Result, per spec.md §6.
func waitChild(sc *startedChild, command string) (Result, error) {
	defer sc.pr.Close()

	err := sc.cmd.Wait()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return Result{}, morierr.WrapReason(morierr.KindChildSpawn, "wait for child process", command, err)
	}

	state := exitErr.ProcessState
	signaled := state.Sys() != nil && exitSignal(state) != 0
	code := morierr.ChildExitCode(state.ExitCode(), signaled, exitSignal(state))
	return Result{ExitCode: code}, nil
}

// applyPrivilegeDrop sets the child's uid/gid from SUDO_UID/SUDO_GID when
// present, a feature original_source/src/runtime/linux/mod.rs's
// spawn_command implements but spec.md's distillation omits.
func applyPrivilegeDrop(cmd *exec.Cmd) {
	uidStr, uidOK := os.LookupEnv("SUDO_UID")
	gidStr, gidOK := os.LookupEnv("SUDO_GID")
	if !uidOK || !gidOK {
		return
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return
	}
	gid, err := strconv.ParseUint(gidStr, 10, 32)
	if err != nil {
		return
	}
	setCredential(cmd, uint32(uid), uint32(gid))
}

// ErrorToMessage renders err the way the orchestrator's caller should print
// it to stderr, matching the teacher's log.Printf/Fatalf diagnostic texture.
func ErrorToMessage(err error) string {
	return fmt.Sprintf("mori: %v", err)
}
