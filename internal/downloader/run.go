package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ligustah/wmd/internal/dump"
	"github.com/ligustah/wmd/internal/metadata"
	"github.com/ligustah/wmd/internal/progress"
	"github.com/ligustah/wmd/internal/staging"
)

// Summary aggregates the outcomes of a run.
type Summary struct {
	DownloadOK  uint64 `json:"download_ok"`
	DownloadLen uint64 `json:"download_len"`
	ExistingOK  uint64 `json:"existing_ok"`
	ExistingLen uint64 `json:"existing_len"`

	// Version is the resolved dump version.
	Version dump.Version `json:"version"`

	// TempDir is the retained staging directory, empty unless kept.
	TempDir string `json:"temp_dir,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Add folds one outcome into the summary.
func (s *Summary) Add(o Outcome) {
	switch o.Kind {
	case Downloaded:
		s.DownloadOK++
		s.DownloadLen += o.Len
	case AlreadyPresent:
		s.ExistingOK++
		s.ExistingLen += o.Len
	}
}

// Files returns the number of files accounted for.
func (s *Summary) Files() uint64 {
	return s.DownloadOK + s.ExistingOK
}

// Request describes one download run.
type Request struct {
	Dump    string
	Version dump.VersionSpec
	Job     string

	// Filter selects files by name. nil matches all.
	Filter *regexp.Regexp

	// KeepTempDir retains the staging directory after the run.
	KeepTempDir bool

	// ProgressOutput, when set, receives a live progress display.
	ProgressOutput io.Writer
}

// RunError is returned by Run. It records where the run stopped and unwraps
// to the underlying error, so errors.Is works against the dump sentinels.
type RunError struct {
	Dump    string
	Version dump.Version
	Job     string
	File    string
	Err     error
}

func (e *RunError) Error() string {
	var b strings.Builder
	b.WriteString("dump ")
	b.WriteString(e.Dump)
	if e.Version != "" {
		b.WriteString(" version ")
		b.WriteString(e.Version.String())
	}
	if e.Job != "" {
		b.WriteString(" job ")
		b.WriteString(e.Job)
	}
	if e.File != "" {
		b.WriteString(" file ")
		b.WriteString(e.File)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Run resolves the requested version, lists the job's files and makes sure
// each one is present under the output root. Files are processed one at a
// time in listing order and the first failure aborts the run. The staging
// area is disposed of on every return path.
func Run(ctx context.Context, meta *metadata.Client, dl *Downloader, req Request) (summary *Summary, err error) {
	start := time.Now()
	log := dl.log.With(slog.String("dump", req.Dump), slog.String("job", req.Job))

	version, err := meta.Resolve(ctx, req.Version, req.Dump, req.Job)
	if err != nil {
		return nil, &RunError{Dump: req.Dump, Job: req.Job, Err: err}
	}
	log = log.With(slog.String("version", version.String()))
	if req.Version.IsLatest() {
		log.Info("Resolved latest version")
	}

	files, err := meta.ListFiles(ctx, req.Dump, version, req.Job, req.Filter)
	if err != nil {
		return nil, &RunError{Dump: req.Dump, Version: version, Job: req.Job, Err: err}
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	log.Info("Listed job files", slog.Int("files", len(files)), slog.String("size", progress.FormatBytes(total)))

	area, err := staging.Create(dl.opts.Fs, dl.opts.OutDir, req.KeepTempDir, dl.opts.Logger)
	if err != nil {
		return nil, &RunError{Dump: req.Dump, Version: version, Job: req.Job, Err: err}
	}

	summary = &Summary{Version: version}
	defer func() {
		kept, disposeErr := area.Dispose()
		if disposeErr != nil {
			log.Warn("Cannot remove staging directory", slog.String("dir", area.Dir()), slog.Any("error", disposeErr))
		}
		summary.TempDir = kept
		summary.Duration = time.Since(start)
	}()

	if req.ProgressOutput != nil {
		reporter := progress.NewReporter(progress.Options{
			TotalFiles: len(files),
			TotalSize:  total,
			Output:     req.ProgressOutput,
			Label:      fmt.Sprintf("%s %s %s", req.Dump, version, req.Job),
		})
		reporter.Start()
		defer reporter.Stop()
		dl = dl.withProgress(reporter)
	}

	job := JobRef{Dump: req.Dump, Version: version, Job: req.Job}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, &RunError{Dump: req.Dump, Version: version, Job: req.Job, File: file.Name, Err: err}
		}

		outcome, err := dl.DownloadOne(ctx, job, file, area)
		if err != nil {
			log.Error("File failed", slog.String("file", file.Name), slog.Any("error", err))
			return summary, &RunError{Dump: req.Dump, Version: version, Job: req.Job, File: file.Name, Err: err}
		}
		summary.Add(outcome)
	}

	log.Info("Run complete",
		slog.Uint64("downloaded", summary.DownloadOK),
		slog.Uint64("downloaded_bytes", summary.DownloadLen),
		slog.Uint64("existing", summary.ExistingOK),
		slog.Uint64("existing_bytes", summary.ExistingLen),
	)
	return summary, nil
}

func (d *Downloader) withProgress(r *progress.Reporter) *Downloader {
	c := *d
	c.opts.Progress = r
	return &c
}
