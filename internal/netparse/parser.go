// Package netparse classifies a network-target string into exactly one of
// IPv4, CIDR, or Domain, per spec.md §4.2. Grounded on
// original_source/src/net/parser.rs's parse_single_rule, adapted to the
// spec's stricter CIDR bound (prefix >= 24, spec.md §3/§4.2, superseding
// the original's prefix <= 32 only check).
package netparse

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind identifies which of the three target shapes a Target is.
type Kind int

const (
	KindIPv4 Kind = iota
	KindCIDR
	KindDomain
)

// Target is the canonicalized classification of one network-target string.
type Target struct {
	Kind Kind
	IPv4 string // set when Kind == KindIPv4, 4-octet dotted form
	CIDR string // set when Kind == KindCIDR, "a.b.c.d/prefix"
	Domain string // set when Kind == KindDomain, lowercased, no trailing dot
}

// Parse classifies raw per spec.md §4.2:
//
//  1. A bare IPv4 literal → IPv4.
//  2. "IPv4/prefix" with 24 <= prefix <= 32 → CIDR. A prefix < 24 fails.
//  3. Otherwise, optionally "host:port" where host is not a valid IPv4
//     literal → Domain(host). The port, if present, is parsed and
//     discarded. A target holding any character other than ASCII
//     letters, digits, '-', '_', '.' and ':' is rejected.
func Parse(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}, fmt.Errorf("empty network target")
	}

	if ipPart, prefixPart, ok := strings.Cut(trimmed, "/"); ok {
		return parseCIDR(trimmed, ipPart, prefixPart)
	}

	if ip := net.ParseIP(trimmed); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return Target{Kind: KindIPv4, IPv4: v4.String()}, nil
		}
		return Target{}, fmt.Errorf("IPv6 addresses are not supported: %s", trimmed)
	}

	if strings.HasPrefix(trimmed, "[") {
		return Target{}, fmt.Errorf("IPv6 addresses are not supported: %s", trimmed)
	}

	if strings.IndexFunc(trimmed, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == ':')
	}) >= 0 {
		return Target{}, fmt.Errorf("invalid network target %q: not an ASCII host name", trimmed)
	}

	host, port, hasPort := cutHostPort(trimmed)
	if hasPort {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return Target{}, fmt.Errorf("invalid port in %q: %w", trimmed, err)
		}
		if ip := net.ParseIP(host); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				return Target{Kind: KindIPv4, IPv4: v4.String()}, nil
			}
			return Target{}, fmt.Errorf("IPv6 addresses are not supported: %s", trimmed)
		}
		return Target{Kind: KindDomain, Domain: canonicalDomain(host)}, nil
	}

	return Target{Kind: KindDomain, Domain: canonicalDomain(trimmed)}, nil
}

// cutHostPort splits "host:port" where port is all-digit, without
// mistaking a bare IPv6 literal (already rejected above) or a domain with
// no port for one. Mirrors original_source's rsplit_once(':') guard.
func cutHostPort(s string) (host, port string, ok bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 || i == 0 || i == len(s)-1 {
		return "", "", false
	}
	host, port = s[:i], s[i+1:]
	for _, r := range port {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return host, port, true
}

func parseCIDR(full, ipPart, prefixPart string) (Target, error) {
	prefix, err := strconv.Atoi(prefixPart)
	if err != nil {
		return Target{}, fmt.Errorf("invalid CIDR prefix length in %q", full)
	}
	ip := net.ParseIP(ipPart)
	if ip == nil {
		return Target{}, fmt.Errorf("invalid IP address in CIDR %q", full)
	}
	v4 := ip.To4()
	if v4 == nil {
		return Target{}, fmt.Errorf("IPv6 CIDR is not supported: %s", full)
	}
	if prefix > 32 {
		return Target{}, fmt.Errorf("CIDR prefix length must be <= 32: %s", full)
	}
	if prefix < 24 {
		return Target{}, fmt.Errorf("cidr too broad: %s (prefix must be >= 24)", full)
	}

	mask := net.CIDRMask(prefix, 32)
	network := v4.Mask(mask)
	return Target{Kind: KindCIDR, CIDR: fmt.Sprintf("%s/%d", network.String(), prefix)}, nil
}

// canonicalDomain lowercases a domain and trims a single trailing dot, per
// spec.md §4.2.
func canonicalDomain(host string) string {
	host = strings.ToLower(host)
	return strings.TrimSuffix(host, ".")
}
