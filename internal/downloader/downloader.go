package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/ligustah/wmd/internal/dump"
	"github.com/ligustah/wmd/internal/progress"
	"github.com/ligustah/wmd/internal/staging"
)

// DefaultBufferSize is the copy buffer used when streaming a file.
const DefaultBufferSize = 4 * 1024 * 1024

// Getter fetches a URL body. The caller closes it.
type Getter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures the downloader.
type Options struct {
	// Fs is the filesystem files are written to.
	// Default: the OS filesystem
	Fs afero.Fs

	// OutDir is the output root. Files land in {OutDir}/{dump}/{version}/{job}/.
	OutDir string

	// CanonicalURL is the base URL job files are fetched from when no
	// mirror is configured.
	CanonicalURL string

	// MirrorURL, when set, replaces CanonicalURL for job file transfers.
	MirrorURL string

	// BufferSize is the size of the copy buffer.
	// Default: 4MiB
	BufferSize int

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// JobRef names the job whose files are downloaded.
type JobRef struct {
	Dump    string
	Version dump.Version
	Job     string
}

// Dir returns the job's output directory below outDir.
func (j JobRef) Dir(outDir string) string {
	return filepath.Join(outDir, j.Dump, j.Version.String(), j.Job)
}

// OutcomeKind tells whether a file was fetched or found on disk.
type OutcomeKind int

const (
	// Downloaded means the file was transferred in this run.
	Downloaded OutcomeKind = iota
	// AlreadyPresent means a complete copy was already at the final path.
	AlreadyPresent
)

func (k OutcomeKind) String() string {
	switch k {
	case Downloaded:
		return "downloaded"
	case AlreadyPresent:
		return "already_present"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of processing one file.
type Outcome struct {
	File dump.FileMeta
	Kind OutcomeKind
	// Len is the transferred length for Downloaded, the on-disk size otherwise.
	Len  uint64
	Path string
}

// DownloadError reports a failed file transfer. It matches
// dump.ErrDownloadFailed with errors.Is.
type DownloadError struct {
	File string
	URL  string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s from %s: %v", e.File, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is dump.ErrDownloadFailed.
func (e *DownloadError) Is(target error) bool {
	return target == dump.ErrDownloadFailed
}

// Downloader fetches job files into their final location.
type Downloader struct {
	client Getter
	opts   Options
	log    *slog.Logger
}

// New creates a downloader using client for file transfers.
func New(client Getter, opts Options) *Downloader {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Downloader{
		client: client,
		opts:   opts,
		log:    opts.Logger.With(slog.String("component", "downloader")),
	}
}

// FinalPath returns where a job file is stored.
func (d *Downloader) FinalPath(job JobRef, file dump.FileMeta) string {
	return filepath.Join(job.Dir(d.opts.OutDir), filepath.Base(file.Name))
}

func (d *Downloader) fileFailed() {
	if d.opts.Progress != nil {
		d.opts.Progress.FileFailed()
	}
}

// SourceURL returns the URL a job file is fetched from: the mirror when one
// is configured, the canonical host otherwise.
func (d *Downloader) SourceURL(file dump.FileMeta) string {
	base := d.opts.CanonicalURL
	if d.opts.MirrorURL != "" {
		base = d.opts.MirrorURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(file.URL, "/")
}

// DownloadOne makes sure file is complete at its final path. An existing file
// of the expected size is reported as AlreadyPresent without any request.
// Otherwise the file is streamed into the staging area and renamed into
// place, so the final path never holds a partial file.
func (d *Downloader) DownloadOne(ctx context.Context, job JobRef, file dump.FileMeta, area *staging.Area) (Outcome, error) {
	fs := d.opts.Fs
	final := d.FinalPath(job, file)
	log := d.log.With(slog.String("file", file.Name))

	if fi, err := fs.Stat(final); err == nil && fi.Mode().IsRegular() && fi.Size() == file.Size {
		log.Debug("File already present", slog.Int64("len", fi.Size()))
		if d.opts.Progress != nil {
			d.opts.Progress.FileSkipped(fi.Size())
		}
		return Outcome{File: file, Kind: AlreadyPresent, Len: uint64(fi.Size()), Path: final}, nil
	}

	url := d.SourceURL(file)
	if d.opts.Progress != nil {
		d.opts.Progress.FileStarted(file.Name)
	}
	log.Info("Downloading file", slog.String("url", url), slog.Int64("size", file.Size))

	staged := area.PathFor(file.Name)
	n, err := d.fetch(ctx, url, staged, file)
	if err != nil {
		if rmErr := fs.Remove(staged); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("Cannot remove staged file", slog.String("path", staged), slog.Any("error", rmErr))
		}
		d.fileFailed()
		return Outcome{}, &DownloadError{File: file.Name, URL: url, Err: err}
	}

	if err := fs.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		d.fileFailed()
		return Outcome{}, fmt.Errorf("create output directory for %s: %w", file.Name, err)
	}
	if err := fs.Rename(staged, final); err != nil {
		d.fileFailed()
		return Outcome{}, fmt.Errorf("move %s into place: %w", file.Name, err)
	}

	if d.opts.Progress != nil {
		d.opts.Progress.FileCompleted()
	}
	log.Debug("File downloaded", slog.Int64("len", n), slog.String("path", final))

	return Outcome{File: file, Kind: Downloaded, Len: uint64(n), Path: final}, nil
}

// fetch streams url into path and returns the number of bytes written.
func (d *Downloader) fetch(ctx context.Context, url, path string, file dump.FileMeta) (int64, error) {
	body, err := d.client.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := d.opts.Fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}

	var w io.Writer = f
	if d.opts.Progress != nil {
		w = io.MultiWriter(f, d.opts.Progress)
	}

	buf := make([]byte, d.opts.BufferSize)
	n, copyErr := io.CopyBuffer(w, readerOnly{body}, buf)
	closeErr := f.Close()

	if copyErr != nil {
		return n, fmt.Errorf("transfer: %w", copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close staged file: %w", closeErr)
	}
	if n != file.Size {
		return n, fmt.Errorf("size mismatch: expected %d, got %d", file.Size, n)
	}
	return n, nil
}

// readerOnly hides WriterTo so io.CopyBuffer uses the configured buffer.
type readerOnly struct {
	io.Reader
}
