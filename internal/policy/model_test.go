package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddFileRuleRejectsNonAbsoluteRelativeMissing(t *testing.T) {
	var fp FilePolicy
	err := fp.AddFileRule("relative/does/not/exist", Read)
	require.Error(t, err, "a non-existent path must be rejected, spec.md Open Question 3")
}

func TestAddFileRuleMergesModeOnSamePath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	var fp FilePolicy
	require.NoError(t, fp.AddFileRule(target, Read))
	require.NoError(t, fp.AddFileRule(target, Write))

	require.Len(t, fp.Rules, 1)
	require.Equal(t, ReadWrite, fp.Rules[0].Mode)
}

func TestAddFileRuleCanonicalizesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.WriteFile(real, []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	var fp FilePolicy
	require.NoError(t, fp.AddFileRule(link, Read))

	require.Len(t, fp.Rules, 1)
	require.Equal(t, real, fp.Rules[0].Path)
}

func TestMergeNetworkAllowAllDominates(t *testing.T) {
	allowAll := NewAllowAllNetworkPolicy()
	list := NetworkPolicy{Kind: AllowList, IPv4: []string{"1.2.3.4"}}

	merged := MergeNetwork(allowAll, list)
	require.Equal(t, AllowAll, merged.Kind)

	merged = MergeNetwork(list, allowAll)
	require.Equal(t, AllowAll, merged.Kind)
}

func TestMergeNetworkUnionsAndDedupes(t *testing.T) {
	a := NetworkPolicy{Kind: AllowList, IPv4: []string{"1.2.3.4"}, Domains: []string{"a.com"}}
	b := NetworkPolicy{Kind: AllowList, IPv4: []string{"1.2.3.4", "5.6.7.8"}, Domains: []string{"b.com"}}

	merged := MergeNetwork(a, b)
	require.Equal(t, AllowList, merged.Kind)
	require.ElementsMatch(t, []string{"1.2.3.4", "5.6.7.8"}, merged.IPv4)
	require.ElementsMatch(t, []string{"a.com", "b.com"}, merged.Domains)
}

func TestBuildNetworkFromTargetsClassifiesAndDedupes(t *testing.T) {
	np, err := BuildNetworkFromTargets([]string{
		"192.0.2.1", "192.0.2.1", "192.0.2.0/24", "example.com", "example.com:443",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"192.0.2.1"}, np.IPv4)
	require.Equal(t, []string{"192.0.2.0/24"}, np.CIDRs)
	require.Equal(t, []string{"example.com"}, np.Domains)
}

func TestValidateRejectsDuplicatePaths(t *testing.T) {
	p := Policy{
		File: FilePolicy{Rules: []FileRule{
			{Path: "/tmp/a", Mode: Read},
			{Path: "/tmp/a", Mode: Write},
		}},
	}
	err := p.Validate()
	require.Error(t, err)
}

func TestValidateRejectsNonAbsolutePath(t *testing.T) {
	p := Policy{File: FilePolicy{Rules: []FileRule{{Path: "relative", Mode: Read}}}}
	err := p.Validate()
	require.Error(t, err)
}

func TestValidateAcceptsWellFormedPolicy(t *testing.T) {
	p := Policy{File: FilePolicy{Rules: []FileRule{{Path: "/tmp/a", Mode: Read}}}}
	require.NoError(t, p.Validate())
}

func TestExpandCIDR(t *testing.T) {
	ips, err := ExpandCIDR("192.0.2.0/30")
	require.NoError(t, err)
	require.Len(t, ips, 4)
	require.Equal(t, "192.0.2.0", ips[0].String())
	require.Equal(t, "192.0.2.3", ips[3].String())
}

func TestExpandCIDRRejectsIPv6(t *testing.T) {
	_, err := ExpandCIDR("2001:db8::/32")
	require.Error(t, err)
}

func TestAccessModeString(t *testing.T) {
	require.Equal(t, "read", Read.String())
	require.Equal(t, "write", Write.String())
	require.Equal(t, "read-write", ReadWrite.String())
}
