// Package dnsresolver resolves domain names to IPv4 addresses using the
// system-configured recursive resolver, spec.md §4.3. Grounded on
// core/dns_proxy.go's use of github.com/miekg/dns (the teacher proxies DNS
// with it; mori uses the same library as a client instead), and on
// original_source/src/net/resolver.rs's SystemDnsResolver, which also
// reports the nameserver IPv4 addresses it consulted.
package dnsresolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"mori/internal/dnscache"
	"mori/internal/morierr"
)

// DomainRecords is one domain's resolved IPv4 addresses plus the minimum
// TTL across its A records, clamped per spec.md §4.3.
type DomainRecords struct {
	Domain  string
	IPv4    []string
	TTL     time.Duration
}

// Resolved is the result of resolving a batch of domains, plus the IPv4
// addresses of the nameservers consulted (spec.md §4.3's "reserved internal
// tag" requirement, implemented by the orchestrator as a distinct IP set).
type Resolved struct {
	Domains     []DomainRecords
	Nameservers []string
}

// Resolver resolves domain names to IPv4 addresses. Contract per spec.md
// §4.3: cancellable via ctx, returns morierr.KindDNSFailure on a domain's
// final failure.
type Resolver interface {
	Resolve(ctx context.Context, domains []string) (Resolved, error)
}

// SystemResolver is the production Resolver: it reads /etc/resolv.conf for
// nameserver IPs (matching the Unix resolver config original_source's
// system_conf::read_system_conf reads) and issues A queries directly via
// github.com/miekg/dns's Client, one query per nameserver-fallback chain
// per domain.
type SystemResolver struct {
	// Timeout bounds each query exchange with one nameserver; spec.md §5
	// recommends <= 5s.
	Timeout time.Duration
}

// NewSystemResolver constructs a SystemResolver with spec.md §5's
// recommended 5s per-query timeout.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{Timeout: 5 * time.Second}
}

// Resolve implements Resolver. It always reads nameserver configuration
// (DNS servers must be allowed even when domains is empty, per
// original_source/src/net/resolver.rs), and resolves each domain in turn,
// stopping early if ctx is cancelled (spec.md §4.3: "Cancelled").
func (r *SystemResolver) Resolve(ctx context.Context, domains []string) (Resolved, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return Resolved{}, morierr.WrapReason(morierr.KindIO, "read resolver configuration", "/etc/resolv.conf", err)
	}

	nameservers := collectNameserverIPv4(conf)

	out := Resolved{Nameservers: nameservers}
	if len(domains) == 0 {
		return out, nil
	}

	client := &dns.Client{Timeout: r.timeout()}

	for _, domain := range domains {
		select {
		case <-ctx.Done():
			return Resolved{}, morierr.Wrap(morierr.KindDNSFailure, "resolve domain", ctx.Err())
		default:
		}

		records, err := r.resolveOne(ctx, client, conf, domain)
		if err != nil {
			return Resolved{}, morierr.WrapReason(morierr.KindDNSFailure, "resolve domain", domain, err)
		}
		if len(records.IPv4) > 0 {
			out.Domains = append(out.Domains, records)
		}
	}

	return out, nil
}

func (r *SystemResolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return 5 * time.Second
	}
	return r.Timeout
}

// resolveOne queries every configured nameserver in order (first success
// wins, matching the "retries are the resolver library's responsibility"
// contract of spec.md §4.3) and returns the minimum-TTL clamp across the A
// records in the winning answer.
func (r *SystemResolver) resolveOne(ctx context.Context, client *dns.Client, conf *dns.ClientConfig, domain string) (DomainRecords, error) {
	fqdn := dns.Fqdn(domain)
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range conf.Servers {
		addr := net.JoinHostPort(server, conf.Port)
		resp, _, err := client.ExchangeContext(ctx, msg, addr)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("nameserver %s returned rcode %s", addr, dns.RcodeToString[resp.Rcode])
			continue
		}

		var ips []string
		minTTL := uint32(0)
		first := true
		for _, rr := range resp.Answer {
			a, ok := rr.(*dns.A)
			if !ok {
				continue
			}
			ips = append(ips, a.A.String())
			if first || a.Hdr.Ttl < minTTL {
				minTTL = a.Hdr.Ttl
				first = false
			}
		}
		if len(ips) == 0 {
			lastErr = fmt.Errorf("no A records for %s", domain)
			continue
		}

		return DomainRecords{
			Domain: domain,
			IPv4:   ips,
			TTL:    dnscache.ClampTTL(time.Duration(minTTL) * time.Second),
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers configured")
	}
	return DomainRecords{}, lastErr
}

func collectNameserverIPv4(conf *dns.ClientConfig) []string {
	seen := make(map[string]struct{}, len(conf.Servers))
	var out []string
	for _, s := range conf.Servers {
		ip := net.ParseIP(s)
		if ip == nil {
			continue
		}
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		str := v4.String()
		if _, ok := seen[str]; ok {
			continue
		}
		seen[str] = struct{}{}
		out = append(out, str)
	}
	return out
}
