package cliconfig

import (
	"os"

	"github.com/BurntSushi/toml"

	"mori/internal/morierr"
	"mori/internal/policy"
)

// ConfigFile mirrors original_source/src/cli/config.rs's ConfigFile: an
// optional TOML document supplying a network allow policy and file deny
// rules, merged with CLI flags by LoadPolicy.
type ConfigFile struct {
	Network NetworkConfig `toml:"network"`
	File    FileConfig    `toml:"file"`
}

// NetworkConfig holds the config file's network.allow key, which TOML lets
// be either a bool (allow-all/deny-all) or a list of target strings —
// original_source's untagged AllowConfig enum. The raw value is kept as a
// toml.Primitive (rawAllow, with hasAllow recording whether the key was
// present) and decoded as one shape or the other by ToNetworkPolicy.
type NetworkConfig struct {
	rawAllow toml.Primitive
	hasAllow bool
}

// FileConfig holds the config file's per-mode deny path lists, mirroring
// original_source/src/cli/config.rs's FileConfig.
type FileConfig struct {
	Deny      []string `toml:"deny"`
	DenyRead  []string `toml:"deny_read"`
	DenyWrite []string `toml:"deny_write"`
}

// configFileRaw is the wire shape TOML decodes network.allow into before
// NetworkConfig's UnmarshalTOML-equivalent post-processing is applied.
type configFileRaw struct {
	Network struct {
		Allow toml.Primitive `toml:"allow"`
	} `toml:"network"`
	File FileConfig `toml:"file"`
}

// LoadConfigFile reads and parses path, per spec.md §4.2 step 2.
func LoadConfigFile(path string) (ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigFile{}, morierr.WrapReason(morierr.KindPolicyInvalid, "read configuration file", path, err)
	}

	var raw configFileRaw
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return ConfigFile{}, morierr.WrapReason(morierr.KindPolicyInvalid, "parse configuration file", path, err)
	}

	cfg := ConfigFile{File: raw.File}
	if meta.IsDefined("network", "allow") {
		cfg.Network.rawAllow = raw.Network.Allow
		cfg.Network.hasAllow = true
	}
	return cfg, nil
}

// ToNetworkPolicy converts the decoded network.allow value into a
// policy.NetworkPolicy, mirroring ConfigFile::to_policy's match over
// AllowConfig::{Boolean, Entries}.
func (c ConfigFile) ToNetworkPolicy() (policy.NetworkPolicy, error) {
	if !c.Network.hasAllow {
		return policy.NewAllowListNetworkPolicy(), nil
	}

	var asBool bool
	if err := toml.PrimitiveDecode(c.Network.rawAllow, &asBool); err == nil {
		if asBool {
			return policy.NewAllowAllNetworkPolicy(), nil
		}
		return policy.NewAllowListNetworkPolicy(), nil
	}

	var asEntries []string
	if err := toml.PrimitiveDecode(c.Network.rawAllow, &asEntries); err != nil {
		return policy.NetworkPolicy{}, morierr.New(morierr.KindPolicyInvalid, "parse network.allow", "must be a boolean or a list of strings")
	}
	return policy.BuildNetworkFromTargets(asEntries)
}
