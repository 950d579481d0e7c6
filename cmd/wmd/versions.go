package main

import (
	"flag"
	"fmt"
)

// runVersions lists the versions the canonical host publishes for a dump.
func runVersions(args []string) int {
	set := flag.NewFlagSet("versions", flag.ContinueOnError)
	set.SetOutput(stderr)

	common := newCommonFlags(set, false)

	set.Usage = func() {
		fmt.Fprintln(stderr, `Usage: wmd versions [options]

List the published versions of a dump, oldest first.

Options:`)
		set.PrintDefaults()
	}

	if err := set.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common.configPath, common.overrides())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.ValidateMetadata(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	logger := newLogger(common.verbose)
	ctx, cancel := signalContext()
	defer cancel()

	meta, closeMeta, err := newMetadataClient(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer closeMeta()

	versions, err := meta.Versions(ctx, cfg.Dump)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	if common.json {
		out := make([]string, len(versions))
		for i, v := range versions {
			out[i] = v.String()
		}
		return writeJSON(struct {
			Dump     string   `json:"dump"`
			Versions []string `json:"versions"`
		}{cfg.Dump, out})
	}

	for _, v := range versions {
		fmt.Fprintln(stdout, v)
	}
	return ExitSuccess
}
