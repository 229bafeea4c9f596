package dnsresolver

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestCollectNameserverIPv4FiltersNonIPv4(t *testing.T) {
	conf := &dns.ClientConfig{Servers: []string{"8.8.8.8", "::1", "not-an-ip", "1.1.1.1"}}
	got := collectNameserverIPv4(conf)
	require.ElementsMatch(t, []string{"8.8.8.8", "1.1.1.1"}, got)
}

func TestCollectNameserverIPv4Dedupes(t *testing.T) {
	conf := &dns.ClientConfig{Servers: []string{"8.8.8.8", "8.8.8.8"}}
	got := collectNameserverIPv4(conf)
	require.Equal(t, []string{"8.8.8.8"}, got)
}

func TestSystemResolverDefaultTimeout(t *testing.T) {
	r := &SystemResolver{}
	require.Equal(t, 0, int(r.Timeout))
	require.Equal(t, "5s", r.timeout().String())
}

func TestNewSystemResolver(t *testing.T) {
	r := NewSystemResolver()
	require.Equal(t, "5s", r.Timeout.String())
}
