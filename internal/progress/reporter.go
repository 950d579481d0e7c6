package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of files in the run.
	TotalFiles int

	// TotalSize is the published size of all files in bytes.
	TotalSize int64

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Label describes the run (for display), e.g. "enwiki 20230301 metacurrentdumprecombine".
	Label string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	skippedBytes   atomic.Int64
	completedFiles atomic.Int32
	skippedFiles   atomic.Int32
	failedFiles    atomic.Int32
	inProgress     atomic.Int32
	current        atomic.Value // string
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	started        bool
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	r := &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.current.Store("")
	return r
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[wmd] Downloading: %s\n", r.opts.Label)
	fmt.Fprintf(r.opts.Output, "[wmd] Files: %d | Total size: %s\n",
		r.opts.TotalFiles,
		FormatBytes(r.opts.TotalSize),
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// FileStarted marks a file as in progress.
func (r *Reporter) FileStarted(name string) {
	r.current.Store(name)
	r.inProgress.Add(1)
}

// BytesWritten records downloaded bytes.
func (r *Reporter) BytesWritten(n int64) {
	r.completedBytes.Add(n)
}

// FileCompleted marks the in-progress file as downloaded.
func (r *Reporter) FileCompleted() {
	r.completedFiles.Add(1)
	r.inProgress.Add(-1)
}

// FileSkipped records a file that was already present.
func (r *Reporter) FileSkipped(size int64) {
	r.skippedFiles.Add(1)
	r.skippedBytes.Add(size)
}

// FileFailed marks the in-progress file as failed.
func (r *Reporter) FileFailed() {
	r.failedFiles.Add(1)
	r.inProgress.Add(-1)
}

// InProgress returns the number of started files not yet completed or failed.
func (r *Reporter) InProgress() int {
	return int(r.inProgress.Load())
}

// FailedFiles returns the number of failed files.
func (r *Reporter) FailedFiles() int {
	return int(r.failedFiles.Load())
}

// Write implements io.Writer so the reporter can count a stream's bytes,
// e.g. via io.TeeReader or io.MultiWriter.
func (r *Reporter) Write(p []byte) (int, error) {
	r.BytesWritten(int64(len(p)))
	return len(p), nil
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completedBytes.Load()
	skipped := r.skippedBytes.Load()
	done := int(r.completedFiles.Load() + r.skippedFiles.Load())

	// Calculate speed
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	// Calculate percentage and ETA
	var percent float64
	eta := "calculating..."
	if r.opts.TotalSize > 0 {
		percent = float64(completed+skipped) / float64(r.opts.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - completed - skipped)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		}
	}

	fmt.Fprintf(r.opts.Output, "\r[wmd] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		FormatBytes(completed+skipped),
		FormatBytes(r.opts.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[wmd] Files: %d/%d | Current: %s    \033[A",
		done,
		r.opts.TotalFiles,
		r.current.Load().(string),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / math.Max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[wmd] Downloaded: %d files, %s | Already present: %d files, %s",
		r.completedFiles.Load(),
		FormatBytes(completed),
		r.skippedFiles.Load(),
		FormatBytes(r.skippedBytes.Load()),
	)
	if failed := r.failedFiles.Load(); failed > 0 {
		fmt.Fprintf(r.opts.Output, " | Failed: %d", failed)
	}
	fmt.Fprint(r.opts.Output, "    \n")
	fmt.Fprintf(r.opts.Output, "[wmd] Total time: %s | Average speed: %s/s    \n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes with SI scales and two decimals, e.g. "1.50 kB".
func FormatBytes(b int64) string {
	const unit = 1000
	if b < unit && b > -unit {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b)
	prefixes := []string{"k", "M", "G", "T", "P", "E"}
	i := -1
	for math.Abs(v) >= unit && i < len(prefixes)-1 {
		v /= unit
		i++
	}
	return fmt.Sprintf("%.2f %sB", v, prefixes[i])
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatDuration is exported for use by other packages.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}

// ParseBytes parses a human-readable byte string. SI suffixes (kB, MB, ...)
// are powers of 1000, binary suffixes (KiB, MiB, ...) powers of 1024.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	orig := s

	var multiplier int64 = 1
	units := []struct {
		suffix string
		mult   int64
	}{
		{"TiB", 1 << 40},
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"TB", 1000 * 1000 * 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"MB", 1000 * 1000},
		{"KB", 1000},
		{"kB", 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", orig)
	}

	return int64(value * float64(multiplier)), nil
}
