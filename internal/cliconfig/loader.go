package cliconfig

import (
	"mori/internal/policy"
)

// LoadPolicy builds the complete validated policy.Policy for one invocation,
// mirroring original_source/src/cli/loader.rs's PolicyLoader::load: start
// from --allow-network-all, merge in the config file's network policy (if
// any), then merge in --allow-network entries (CLI always wins by union,
// since MergeNetwork's allow-all dominance makes order irrelevant there).
// File deny rules are purely additive across config file and CLI, per
// spec.md §4.1.
func LoadPolicy(args Args) (*policy.Policy, error) {
	net := policy.NewAllowAllNetworkPolicy()
	if !args.AllowAll {
		net = policy.NewAllowListNetworkPolicy()
	}

	var file policy.FilePolicy

	if args.ConfigPath != "" {
		cfg, err := LoadConfigFile(args.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfgNet, err := cfg.ToNetworkPolicy()
		if err != nil {
			return nil, err
		}
		net = policy.MergeNetwork(net, cfgNet)

		if err := addFileRules(&file, cfg.File.Deny, policy.ReadWrite); err != nil {
			return nil, err
		}
		if err := addFileRules(&file, cfg.File.DenyRead, policy.Read); err != nil {
			return nil, err
		}
		if err := addFileRules(&file, cfg.File.DenyWrite, policy.Write); err != nil {
			return nil, err
		}
	}

	if !args.AllowAll {
		cliNet, err := policy.BuildNetworkFromTargets(args.AllowNetwork)
		if err != nil {
			return nil, err
		}
		net = policy.MergeNetwork(net, cliNet)
	}

	if err := addFileRules(&file, args.DenyFile, policy.ReadWrite); err != nil {
		return nil, err
	}
	if err := addFileRules(&file, args.DenyFileRead, policy.Read); err != nil {
		return nil, err
	}
	if err := addFileRules(&file, args.DenyFileWrite, policy.Write); err != nil {
		return nil, err
	}

	p := &policy.Policy{Network: net, File: file}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func addFileRules(fp *policy.FilePolicy, paths []string, mode policy.AccessMode) error {
	for _, path := range paths {
		if err := fp.AddFileRule(path, mode); err != nil {
			return err
		}
	}
	return nil
}
