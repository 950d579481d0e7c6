package main

import (
	"flag"
	"fmt"

	"github.com/spf13/afero"

	"github.com/ligustah/wmd/internal/downloader"
	"github.com/ligustah/wmd/internal/progress"
)

// runValidate checks that every (matching) file of a job is present in the
// output directory with its published size. Nothing is downloaded.
func runValidate(args []string) int {
	set := flag.NewFlagSet("validate", flag.ContinueOnError)
	set.SetOutput(stderr)

	common := newCommonFlags(set, true)

	set.Usage = func() {
		fmt.Fprintln(stderr, `Usage: wmd validate -out-dir DIR [options]

Verify that the files of a dump job exist in DIR with the published sizes.
Only metadata is fetched, file contents are not downloaded or hashed.

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
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		set.Usage()
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
	files, err := meta.ListFiles(ctx, cfg.Dump, version, cfg.Job, filter)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	// Validate only stats files, so no transfer client is needed.
	dl := downloader.New(nil, downloader.Options{
		Fs:     afero.NewOsFs(),
		OutDir: cfg.OutDir,
		Logger: logger,
	})
	job := downloader.JobRef{Dump: cfg.Dump, Version: version, Job: cfg.Job}

	result, err := dl.Validate(job, files)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	if common.json {
		if code := writeJSON(result); code != ExitSuccess {
			return code
		}
		if !result.Valid {
			return ExitValidationFailed
		}
		return ExitSuccess
	}

	fmt.Fprintf(stdout, "Job: %s %s %s\n", cfg.Dump, version, cfg.Job)
	fmt.Fprintf(stdout, "Directory: %s\n", job.Dir(cfg.OutDir))
	fmt.Fprintf(stdout, "Files: %d (%s)\n", result.FileCount, progress.FormatBytes(result.TotalSize))

	if result.Valid {
		fmt.Fprintln(stdout, "Status: COMPLETE")
		return ExitSuccess
	}

	fmt.Fprintln(stdout, "Status: INCOMPLETE")
	fmt.Fprintf(stdout, "Missing files: %d\n", result.MissingFiles)
	fmt.Fprintf(stdout, "Size mismatches: %d\n", result.SizeMismatches)

	if len(result.Errors) > 0 {
		fmt.Fprintln(stdout, "\nErrors:")
		for _, e := range result.Errors {
			fmt.Fprintf(stdout, "  - %s\n", e)
		}
	}

	return ExitValidationFailed
}
