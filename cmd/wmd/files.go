package main

import (
	"flag"
	"fmt"

	"github.com/ligustah/wmd/internal/dump"
	"github.com/ligustah/wmd/internal/progress"
)

// runFiles resolves the version and lists the job's files without
// downloading anything.
func runFiles(args []string) int {
	set := flag.NewFlagSet("files", flag.ContinueOnError)
	set.SetOutput(stderr)

	common := newCommonFlags(set, true)

	set.Usage = func() {
		fmt.Fprintln(stderr, `Usage: wmd files [options]

List the files of a dump job with their sizes and URLs.

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
	spec, _ := cfg.VersionSpec()
	filter, _ := cfg.FileFilter()

	logger := newLogger(common.verbose)
	ctx, cancel := signalContext()
	defer cancel()

	meta, closeMeta, err := newMetadataClient(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer closeMeta()

	version, err := meta.Resolve(ctx, spec, cfg.Dump, cfg.Job)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	job, err := meta.Job(ctx, cfg.Dump, version, cfg.Job)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	// Unfinished jobs are listed too, their status tells why download refuses them.
	files := dump.FilterFiles(job.FileMetas(), filter)

	var total int64
	for _, f := range files {
		total += f.Size
	}

	if common.json {
		return writeJSON(struct {
			Dump      string          `json:"dump"`
			Version   string          `json:"version"`
			Job       string          `json:"job"`
			Status    string          `json:"status"`
			Updated   string          `json:"updated"`
			TotalSize int64           `json:"total_size"`
			Files     []dump.FileMeta `json:"files"`
		}{cfg.Dump, version.String(), cfg.Job, job.Status, job.Updated, total, files})
	}

	fmt.Fprintf(stdout, "%s %s %s (%s, updated %s)\n", cfg.Dump, version, cfg.Job, job.Status, job.Updated)
	for _, f := range files {
		fmt.Fprintf(stdout, "%12s  %s\n", progress.FormatBytes(f.Size), f.Name)
	}
	fmt.Fprintf(stdout, "%d files, %s\n", len(files), progress.FormatBytes(total))
	return ExitSuccess
}
