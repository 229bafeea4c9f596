package netparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantKind Kind
		check    func(t *testing.T, target Target)
	}{
		{
			name:     "bare ipv4",
			raw:      "192.0.2.1",
			wantKind: KindIPv4,
			check: func(t *testing.T, target Target) {
				require.Equal(t, "192.0.2.1", target.IPv4)
			},
		},
		{
			name:     "ipv4 with port is still classified as ipv4",
			raw:      "192.0.2.1:443",
			wantKind: KindIPv4,
			check: func(t *testing.T, target Target) {
				require.Equal(t, "192.0.2.1", target.IPv4)
			},
		},
		{
			name:     "cidr at minimum allowed prefix",
			raw:      "192.0.2.0/24",
			wantKind: KindCIDR,
			check: func(t *testing.T, target Target) {
				require.Equal(t, "192.0.2.0/24", target.CIDR)
			},
		},
		{
			name:     "narrower cidr allowed",
			raw:      "192.0.2.0/28",
			wantKind: KindCIDR,
		},
		{
			name:     "domain lowercased and trailing dot trimmed",
			raw:      "Example.COM.",
			wantKind: KindDomain,
			check: func(t *testing.T, target Target) {
				require.Equal(t, "example.com", target.Domain)
			},
		},
		{
			name:     "domain with port keeps only the host part",
			raw:      "example.com:8080",
			wantKind: KindDomain,
			check: func(t *testing.T, target Target) {
				require.Equal(t, "example.com", target.Domain)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := Parse(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.wantKind, target.Kind)
			if tc.check != nil {
				tc.check(t, target)
			}
		})
	}
}

func TestParseRejectsWideCIDR(t *testing.T) {
	_, err := Parse("192.0.0.0/16")
	require.Error(t, err, "prefixes wider than /24 must be rejected")
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("!!!not a target")
	require.Error(t, err)
}
