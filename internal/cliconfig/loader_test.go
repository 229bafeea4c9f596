package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mori/internal/policy"
)

func TestLoadPolicyAllowAllIgnoresEntries(t *testing.T) {
	args := Args{AllowAll: true, AllowNetwork: []string{"example.com"}, Command: "echo"}
	p, err := LoadPolicy(args)
	require.NoError(t, err)
	require.Equal(t, policy.AllowAll, p.Network.Kind)
}

func TestLoadPolicyDenyAllByDefault(t *testing.T) {
	args := Args{Command: "echo"}
	p, err := LoadPolicy(args)
	require.NoError(t, err)
	require.Equal(t, policy.AllowList, p.Network.Kind)
	require.Empty(t, p.Network.IPv4)
}

func TestLoadPolicyCLIEntriesPopulateAllowList(t *testing.T) {
	args := Args{AllowNetwork: []string{"192.0.2.1", "example.com"}, Command: "echo"}
	p, err := LoadPolicy(args)
	require.NoError(t, err)
	require.Equal(t, []string{"192.0.2.1"}, p.Network.IPv4)
	require.Equal(t, []string{"example.com"}, p.Network.Domains)
}

func TestLoadPolicyMergesConfigFileAndCLI(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "mori.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[network]\nallow = [\"192.0.2.1\"]\n"), 0o644))

	args := Args{ConfigPath: configPath, AllowNetwork: []string{"example.com"}, Command: "echo"}
	p, err := LoadPolicy(args)
	require.NoError(t, err)
	require.Equal(t, []string{"192.0.2.1"}, p.Network.IPv4)
	require.Equal(t, []string{"example.com"}, p.Network.Domains)
}

func TestLoadPolicyFileDenyRulesFromCLI(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	args := Args{DenyFileRead: []string{target}, Command: "echo"}
	p, err := LoadPolicy(args)
	require.NoError(t, err)
	require.Len(t, p.File.Rules, 1)
	require.Equal(t, policy.Read, p.File.Rules[0].Mode)
}

func TestLoadPolicyRejectsMissingConfigFile(t *testing.T) {
	args := Args{ConfigPath: "/nonexistent/mori.toml", Command: "echo"}
	_, err := LoadPolicy(args)
	require.Error(t, err)
}
