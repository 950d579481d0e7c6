// Package testutils provides shared test infrastructure: a fake dumps host
// serving version indexes, dumpstatus.json documents and job files, and (with
// the integration build tag) container backed mirrors.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// TestFile defines a job file with its content.
type TestFile struct {
	Name string
	Data []byte
}

// TestJob defines a job of a dump version.
type TestJob struct {
	Name   string
	Status string
	Files  []TestFile
}

// GenerateTestData generates deterministic test data of the given size.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

// DumpServer is a fake dumps host. Every request path is recorded.
type DumpServer struct {
	*httptest.Server

	prefix string

	mu       sync.Mutex
	dumps    map[string][]string
	statuses map[string][]byte
	files    map[string][]byte
	failures map[string]int
	truncate map[string]bool
	requests []string
}

// StartDumpServer starts a fake host. prefix is prepended to every path, as
// on mirrors that serve dumps below a directory (e.g. "/mirror/dumps").
func StartDumpServer(t *testing.T, prefix string) *DumpServer {
	t.Helper()

	s := &DumpServer{
		prefix:   strings.TrimRight(prefix, "/"),
		dumps:    make(map[string][]string),
		statuses: make(map[string][]byte),
		files:    make(map[string][]byte),
		failures: make(map[string]int),
		truncate: make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the server URL including the prefix.
func (s *DumpServer) BaseURL() string {
	return s.Server.URL + s.prefix
}

// AddVersion publishes a dump version with its jobs.
func (s *DumpServer) AddVersion(t *testing.T, dump, version string, jobs ...TestJob) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dumps[dump] = append(s.dumps[dump], version)

	type fileEntry struct {
		Size int64  `json:"size"`
		URL  string `json:"url"`
		MD5  string `json:"md5,omitempty"`
	}
	type jobEntry struct {
		Status  string               `json:"status"`
		Updated string               `json:"updated"`
		Files   map[string]fileEntry `json:"files"`
	}

	status := struct {
		Jobs    map[string]jobEntry `json:"jobs"`
		Version string              `json:"version"`
	}{Jobs: make(map[string]jobEntry), Version: "0.8"}

	for _, job := range jobs {
		entry := jobEntry{
			Status:  job.Status,
			Updated: "2023-03-02 10:00:00",
			Files:   make(map[string]fileEntry),
		}
		for _, f := range job.Files {
			rel := FileURL(dump, version, f.Name)
			entry.Files[f.Name] = fileEntry{Size: int64(len(f.Data)), URL: rel}
			s.files[rel] = f.Data
		}
		status.Jobs[job.Name] = entry
	}

	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("encode dumpstatus: %v", err)
	}
	s.statuses[fmt.Sprintf("/%s/%s/dumpstatus.json", dump, version)] = data
}

// SetStatus replaces the raw dumpstatus.json of a version.
func (s *DumpServer) SetStatus(dump, version string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[fmt.Sprintf("/%s/%s/dumpstatus.json", dump, version)] = raw
}

// SetFile replaces the content served for a file URL without touching the
// published metadata.
func (s *DumpServer) SetFile(rel string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[rel] = data
}

// Fail makes the server answer rel with the given status code.
func (s *DumpServer) Fail(rel string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[rel] = code
}

// Heal clears all failures and truncations.
func (s *DumpServer) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]int)
	s.truncate = make(map[string]bool)
}

// Truncate makes the server announce the full length of rel but drop the
// connection halfway through the body.
func (s *DumpServer) Truncate(rel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[rel] = true
}

// Requests returns the request paths seen so far, without the prefix.
func (s *DumpServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// ResetRequests clears the request log.
func (s *DumpServer) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// FileRequests returns the requests for job files.
func (s *DumpServer) FileRequests() []string {
	var out []string
	for _, p := range s.Requests() {
		if !strings.HasSuffix(p, "/") && !strings.HasSuffix(p, "dumpstatus.json") {
			out = append(out, p)
		}
	}
	return out
}

// FileURL returns the relative URL the fake host publishes for a file.
func FileURL(dump, version, name string) string {
	return fmt.Sprintf("/%s/%s/%s", dump, version, name)
}

func (s *DumpServer) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, s.prefix+"/") {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, s.prefix)

	s.mu.Lock()
	s.requests = append(s.requests, path)
	code, failing := s.failures[path]
	truncate := s.truncate[path]
	status, isStatus := s.statuses[path]
	data, isFile := s.files[path]
	var versions []string
	parts := strings.Split(strings.Trim(path, "/"), "/")
	isIndex := strings.HasSuffix(path, "/") && len(parts) == 1
	if isIndex {
		versions = append(versions, s.dumps[parts[0]]...)
	}
	s.mu.Unlock()

	switch {
	case failing:
		w.WriteHeader(code)
	case isIndex && len(versions) > 0:
		sort.Strings(versions)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>Index of /%s/</title></head><body><pre>\n", parts[0])
		fmt.Fprintln(w, `<a href="../">../</a>`)
		for _, v := range versions {
			fmt.Fprintf(w, "<a href=\"%s/\">%s/</a>  01-Mar-2023 00:00  -\n", v, v)
		}
		fmt.Fprintln(w, `<a href="latest/">latest/</a>  01-Mar-2023 00:00  -`)
		fmt.Fprintln(w, "</pre></body></html>")
	case isStatus:
		w.Header().Set("Content-Type", "application/json")
		w.Write(status)
	case isFile && truncate:
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data[:len(data)/2])
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
			}
		}
	case isFile:
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	default:
		http.NotFound(w, r)
	}
}
