// Package metadata reads version indexes and job manifests from the canonical
// dumps host.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/ligustah/wmd/internal/dump"
	wmdhttp "github.com/ligustah/wmd/internal/http"
)

// DefaultBaseURL is the canonical dumps host.
const DefaultBaseURL = "https://dumps.wikimedia.org"

// JobStatusDone is the status of a job whose files are all published.
const JobStatusDone = "done"

var versionLinkPattern = regexp.MustCompile(`href="(\d{8})/?"`)

// Getter fetches a URL body. The client in internal/http and *httpcache.Cache
// both implement it.
type Getter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Client reads dump metadata from the canonical host. It never talks to a mirror.
type Client struct {
	getter  Getter
	baseURL string
	log     *slog.Logger
}

// NewClient creates a metadata client for baseURL. An empty baseURL selects
// DefaultBaseURL.
func NewClient(getter Getter, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.With(slog.String("component", "metadata")),
	}
}

// BaseURL returns the canonical host URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DumpStatus is the decoded dumpstatus.json of one dump version.
type DumpStatus struct {
	Jobs    map[string]Job `json:"jobs"`
	Version string         `json:"version"`
}

// Job is one job entry of a dumpstatus.json.
type Job struct {
	Status  string             `json:"status"`
	Updated string             `json:"updated"`
	Files   map[string]JobFile `json:"files"`
}

// JobFile is one file entry of a job.
type JobFile struct {
	Size int64  `json:"size"`
	URL  string `json:"url"`
	MD5  string `json:"md5"`
	SHA1 string `json:"sha1"`
}

// Resolve turns spec into a concrete version. Exact specs are returned without
// any request. Latest fetches the dump's version index once and then reads
// dumpstatus.json newest-first until it finds a version where jobName is done.
// Versions without a status file or without the job are skipped.
func (c *Client) Resolve(ctx context.Context, spec dump.VersionSpec, dumpName, jobName string) (dump.Version, error) {
	if v, ok := spec.Version(); ok {
		return v, nil
	}

	versions, err := c.Versions(ctx, dumpName)
	if err != nil {
		return "", err
	}

	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		job, err := c.Job(ctx, dumpName, v, jobName)
		switch {
		case errors.Is(err, dump.ErrVersionNotFound), errors.Is(err, dump.ErrJobNotFound):
			continue
		case err != nil:
			return "", err
		}
		if job.Status != JobStatusDone {
			c.log.Debug("Skipping unfinished version",
				slog.String("dump", dumpName),
				slog.String("version", v.String()),
				slog.String("job", jobName),
				slog.String("status", job.Status),
			)
			continue
		}
		c.log.Debug("Resolved latest version", slog.String("dump", dumpName), slog.String("version", v.String()))
		return v, nil
	}

	return "", fmt.Errorf("%w: dump %q has no version where job %q is done", dump.ErrNoVersionsFound, dumpName, jobName)
}

// Versions lists the dump's versions in ascending order. It fails with
// dump.ErrNoVersionsFound when the index is missing or empty.
func (c *Client) Versions(ctx context.Context, dumpName string) ([]dump.Version, error) {
	url := fmt.Sprintf("%s/%s/", c.baseURL, dumpName)

	data, err := c.read(ctx, url)
	if err != nil {
		if errors.Is(err, wmdhttp.ErrNotFound) {
			return nil, fmt.Errorf("%w: dump %q has no version index", dump.ErrNoVersionsFound, dumpName)
		}
		return nil, err
	}

	versions := parseVersionIndex(data)
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: dump %q", dump.ErrNoVersionsFound, dumpName)
	}
	return versions, nil
}

// DumpStatus fetches dumpstatus.json for a dump version.
func (c *Client) DumpStatus(ctx context.Context, dumpName string, version dump.Version) (*DumpStatus, error) {
	url := fmt.Sprintf("%s/%s/%s/dumpstatus.json", c.baseURL, dumpName, version)

	data, err := c.read(ctx, url)
	if err != nil {
		if errors.Is(err, wmdhttp.ErrNotFound) {
			return nil, fmt.Errorf("%w: dump %q version %q", dump.ErrVersionNotFound, dumpName, version)
		}
		return nil, err
	}

	var status DumpStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", dump.ErrMetadataUnavailable, url, err)
	}
	return &status, nil
}

// Job returns the status record of one job.
func (c *Client) Job(ctx context.Context, dumpName string, version dump.Version, jobName string) (*Job, error) {
	status, err := c.DumpStatus(ctx, dumpName, version)
	if err != nil {
		return nil, err
	}
	job, ok := status.Jobs[jobName]
	if !ok {
		return nil, fmt.Errorf("%w: job %q in dump %q version %q", dump.ErrJobNotFound, jobName, dumpName, version)
	}
	return &job, nil
}

// ListFiles lists the files of a finished job, sorted by name and filtered by
// filter when it is non-nil.
func (c *Client) ListFiles(ctx context.Context, dumpName string, version dump.Version, jobName string, filter *regexp.Regexp) ([]dump.FileMeta, error) {
	job, err := c.Job(ctx, dumpName, version, jobName)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusDone {
		return nil, fmt.Errorf("%w: job %q in dump %q version %q has status %q",
			dump.ErrJobNotDone, jobName, dumpName, version, job.Status)
	}

	files := job.FileMetas()
	filtered := dump.FilterFiles(files, filter)

	c.log.Debug("Listed job files",
		slog.String("dump", dumpName),
		slog.String("version", version.String()),
		slog.String("job", jobName),
		slog.Int("total", len(files)),
		slog.Int("matched", len(filtered)),
	)
	return filtered, nil
}

// FileMetas returns the job's files sorted by name.
func (j *Job) FileMetas() []dump.FileMeta {
	files := make([]dump.FileMeta, 0, len(j.Files))
	for name, f := range j.Files {
		files = append(files, dump.FileMeta{
			Name: name,
			URL:  f.URL,
			Size: f.Size,
			MD5:  f.MD5,
			SHA1: f.SHA1,
		})
	}
	dump.SortFiles(files)
	return files
}

func (c *Client) read(ctx context.Context, url string) ([]byte, error) {
	body, err := c.getter.Get(ctx, url)
	if err != nil {
		if errors.Is(err, wmdhttp.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", dump.ErrMetadataUnavailable, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", dump.ErrMetadataUnavailable, url, err)
	}
	return data, nil
}

// parseVersionIndex extracts the version directory links of an index page.
func parseVersionIndex(data []byte) []dump.Version {
	seen := make(map[dump.Version]bool)
	var versions []dump.Version
	for _, m := range versionLinkPattern.FindAllSubmatch(data, -1) {
		v := dump.Version(m[1])
		if seen[v] {
			continue
		}
		seen[v] = true
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}
