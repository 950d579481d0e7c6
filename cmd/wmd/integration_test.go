//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligustah/wmd/internal/testutils"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	files := []testutils.TestFile{
		{Name: "enwiki-20230301-pages-meta-current1.xml-p1p41242.bz2", Data: testutils.GenerateTestData(t, 4*1024*1024)},
		{Name: "enwiki-20230301-pages-meta-current2.xml-p41243p151573.bz2", Data: testutils.GenerateTestData(t, 3*1024*1024)},
	}

	canonical := testutils.StartDumpServer(t, "")
	canonical.AddVersion(t, "enwiki", "20230301", testutils.TestJob{Name: "metacurrentdumprecombine", Status: "done", Files: files})

	mirrorFiles := make(map[string][]byte)
	for _, f := range files {
		mirrorFiles[testutils.FileURL("enwiki", "20230301", f.Name)] = f.Data
	}
	mirror := testutils.StartMirrorContainer(t, ctx, mirrorFiles)
	defer mirror.Close(ctx)

	outDir := t.TempDir()
	args := []string{"download",
		"-out-dir", outDir,
		"-canonical-url", canonical.BaseURL(),
		"-mirror-url", mirror.BaseURL,
		"-progress",
		"-json",
	}

	t.Run("download", func(t *testing.T) {
		out, _ := captureOutput(t)
		if code := run(args); code != ExitSuccess {
			t.Fatalf("download failed with exit code %d", code)
		}

		var result downloadResult
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			t.Fatalf("decode JSON output: %v", err)
		}
		if result.DownloadOK != uint64(len(files)) {
			t.Errorf("expected %d downloads, got %+v", len(files), result)
		}
		if reqs := canonical.FileRequests(); len(reqs) != 0 {
			t.Errorf("expected no file requests on the canonical host, got %v", reqs)
		}

		for _, f := range files {
			data, err := os.ReadFile(filepath.Join(outDir, "enwiki", "20230301", "metacurrentdumprecombine", f.Name))
			if err != nil {
				t.Fatalf("read %s: %v", f.Name, err)
			}
			if !bytes.Equal(data, f.Data) {
				t.Errorf("content mismatch for %s", f.Name)
			}
		}
	})

	t.Run("rerun", func(t *testing.T) {
		out, _ := captureOutput(t)
		if code := run(args); code != ExitSuccess {
			t.Fatalf("second download failed with exit code %d", code)
		}

		var result downloadResult
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			t.Fatalf("decode JSON output: %v", err)
		}
		if result.DownloadOK != 0 || result.ExistingOK != uint64(len(files)) {
			t.Errorf("expected everything to be present, got %+v", result)
		}
	})

	t.Run("partial", func(t *testing.T) {
		victim := filepath.Join(outDir, "enwiki", "20230301", "metacurrentdumprecombine", files[1].Name)
		if err := os.Truncate(victim, 1024); err != nil {
			t.Fatalf("truncate: %v", err)
		}

		out, _ := captureOutput(t)
		if code := run(args); code != ExitSuccess {
			t.Fatalf("repair download failed with exit code %d", code)
		}

		var result downloadResult
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			t.Fatalf("decode JSON output: %v", err)
		}
		if result.DownloadOK != 1 || result.ExistingOK != 1 {
			t.Errorf("expected one repaired file, got %+v", result)
		}
	})
}
