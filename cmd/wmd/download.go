package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/ligustah/wmd/internal/config"
	"github.com/ligustah/wmd/internal/downloader"
	wmdhttp "github.com/ligustah/wmd/internal/http"
	"github.com/ligustah/wmd/internal/progress"
)

// downloadResult is the JSON form of a finished run.
type downloadResult struct {
	Dump        string `json:"dump"`
	Version     string `json:"version"`
	Job         string `json:"job"`
	OutDir      string `json:"out_dir"`
	DownloadOK  uint64 `json:"download_ok"`
	DownloadLen uint64 `json:"download_len"`
	ExistingOK  uint64 `json:"existing_ok"`
	ExistingLen uint64 `json:"existing_len"`
	TempDir     string `json:"temp_dir,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

// runDownload downloads every (matching) file of a dump job that is not
// already present in the output directory.
func runDownload(args []string) int {
	set := flag.NewFlagSet("download", flag.ContinueOnError)
	set.SetOutput(stderr)

	common := newCommonFlags(set, true)
	mirrorURL := set.String("mirror-url", "", "Mirror base URL to download job files from (metadata always comes from the canonical host)")
	keepTempDir := set.Bool("keep-temp-dir", false, "Keep the staging directory after the run")
	showProgress := set.Bool("progress", false, "Show progress output")

	set.Usage = func() {
		fmt.Fprintln(stderr, `Usage: wmd download -out-dir DIR [options]

Download the files of a Wikimedia dump job into DIR/{dump}/{version}/{job}/.
Files already present with the published size are skipped, so an interrupted
run can simply be started again.

Options:`)
		set.PrintDefaults()
	}

	if err := set.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	overrides := common.overrides()
	overrides.MirrorURL = *mirrorURL
	overrides.KeepTempDir = *keepTempDir
	overrides.Progress = *showProgress

	cfg, err := loadConfig(common.configPath, overrides)
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

	logger := newLogger(common.verbose).With(slog.String("run_id", uuid.NewString()))

	ctx, cancel := signalContext()
	defer cancel()

	meta, closeMeta, err := newMetadataClient(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer closeMeta()

	// Bulk transfers have no overall timeout.
	dl := downloader.New(wmdhttp.NewClient(httpOptions(cfg, false)), downloader.Options{
		Fs:           afero.NewOsFs(),
		OutDir:       cfg.OutDir,
		CanonicalURL: cfg.CanonicalURL,
		MirrorURL:    cfg.MirrorURL,
		BufferSize:   int(cfg.BufferSize),
		Logger:       logger,
	})

	req := downloader.Request{
		Dump:        cfg.Dump,
		Version:     spec,
		Job:         cfg.Job,
		Filter:      filter,
		KeepTempDir: cfg.KeepTempDir,
	}
	if cfg.Progress {
		req.ProgressOutput = stderr
	}

	summary, err := downloader.Run(ctx, meta, dl, req)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(stderr, "[wmd] Download interrupted, run again to resume")
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	logger.Info("download command complete",
		slog.String("dump", cfg.Dump),
		slog.String("version", summary.Version.String()),
		slog.String("job", cfg.Job),
		slog.Uint64("download_ok", summary.DownloadOK),
		slog.Uint64("download_len", summary.DownloadLen),
		slog.Uint64("existing_ok", summary.ExistingOK),
		slog.Uint64("existing_len", summary.ExistingLen),
		slog.Duration("duration", summary.Duration),
	)

	if common.json {
		return writeJSON(downloadResult{
			Dump:        cfg.Dump,
			Version:     summary.Version.String(),
			Job:         cfg.Job,
			OutDir:      cfg.OutDir,
			DownloadOK:  summary.DownloadOK,
			DownloadLen: summary.DownloadLen,
			ExistingOK:  summary.ExistingOK,
			ExistingLen: summary.ExistingLen,
			TempDir:     summary.TempDir,
			DurationMS:  summary.Duration.Milliseconds(),
		})
	}

	printSummary(cfg, summary)
	return ExitSuccess
}

func printSummary(cfg config.Config, s *downloader.Summary) {
	fmt.Fprintf(stdout, "%s %s %s -> %s\n", cfg.Dump, s.Version, cfg.Job, cfg.OutDir)
	fmt.Fprintf(stdout, "  downloaded:      %d files, %s\n", s.DownloadOK, progress.FormatBytes(int64(s.DownloadLen)))
	fmt.Fprintf(stdout, "  already present: %d files, %s\n", s.ExistingOK, progress.FormatBytes(int64(s.ExistingLen)))
	fmt.Fprintf(stdout, "  took:            %s\n", progress.FormatDuration(s.Duration.Round(time.Second)))
	if s.TempDir != "" {
		fmt.Fprintf(stdout, "  kept staging:    %s\n", s.TempDir)
	}
}

func writeJSON(v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
