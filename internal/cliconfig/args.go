// Package cliconfig parses mori's command line and an optional TOML
// configuration file into a validated policy.Policy, spec.md §4.2/§9. Args
// is grounded on original_source/src/cli/args.rs's clap Args struct,
// translated to github.com/spf13/pflag's GNU-style long flags (the way
// bureau-foundation-bureau, elsewhere in this corpus, builds its CLI).
package cliconfig

import (
	"github.com/spf13/pflag"

	"mori/internal/morierr"
)

// Args is the parsed command line, mirroring original_source/src/cli/args.rs.
type Args struct {
	ConfigPath    string
	AllowNetwork  []string
	AllowAll      bool
	DenyFile      []string
	DenyFileRead  []string
	DenyFileWrite []string
	Command       string
	CommandArgs   []string
}

// ParseArgs parses argv (excluding the program name) into Args, per spec.md
// §4.2 step 1. The command to execute and its own arguments are everything
// after the flags, mirroring clap's `last = true, required = true` field.
func ParseArgs(argv []string) (Args, error) {
	fs := pflag.NewFlagSet("mori", pflag.ContinueOnError)
	fs.Usage = func() {}
	fs.SetInterspersed(false) // command and its own args always trail mori's flags, like clap's `last = true`

	configPath := fs.String("config", "", "path to configuration file (TOML)")
	allowNetwork := fs.StringSlice("allow-network", nil, "allow outbound connections to host[:port] (FQDN/IP), comma-separated or repeated")
	allowAll := fs.Bool("allow-network-all", false, "allow all outbound network connections")
	denyFile := fs.StringSlice("deny-file", nil, "deny read/write access to the given paths")
	denyFileRead := fs.StringSlice("deny-file-read", nil, "deny read access to the given paths")
	denyFileWrite := fs.StringSlice("deny-file-write", nil, "deny write access to the given paths")

	if err := fs.Parse(argv); err != nil {
		return Args{}, morierr.WrapReason(morierr.KindPolicyInvalid, "parse command line", "", err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return Args{}, morierr.New(morierr.KindPolicyInvalid, "parse command line", "no command given to execute")
	}

	return Args{
		ConfigPath:    *configPath,
		AllowNetwork:  *allowNetwork,
		AllowAll:      *allowAll,
		DenyFile:      *denyFile,
		DenyFileRead:  *denyFileRead,
		DenyFileWrite: *denyFileWrite,
		Command:       rest[0],
		CommandArgs:   rest[1:],
	}, nil
}
