package downloader

import (
	"fmt"
	"os"

	"github.com/ligustah/wmd/internal/dump"
)

// ValidationResult reports how complete a job's local copy is.
type ValidationResult struct {
	Valid          bool     `json:"valid"` // every file present with the published size
	TotalSize      int64    `json:"total_size"`
	FileCount      int      `json:"file_count"`
	PresentFiles   int      `json:"present_files"`
	MissingFiles   int      `json:"missing_files"`
	SizeMismatches int      `json:"size_mismatches"`
	Errors         []string `json:"errors"`
}

// Validate checks the final paths of files against their published sizes
// without any network access. Missing or incomplete files are reported in
// the result, not as errors; an error means the filesystem could not be read.
func (d *Downloader) Validate(job JobRef, files []dump.FileMeta) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:     true,
		FileCount: len(files),
		Errors:    make([]string, 0),
	}

	for _, file := range files {
		result.TotalSize += file.Size
		path := d.FinalPath(job, file)

		fi, err := d.opts.Fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				result.Valid = false
				result.MissingFiles++
				result.Errors = append(result.Errors, fmt.Sprintf("%s missing", file.Name))
				continue
			}
			return nil, fmt.Errorf("check %s: %w", file.Name, err)
		}

		if !fi.Mode().IsRegular() || fi.Size() != file.Size {
			result.Valid = false
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s size mismatch: expected %d, got %d", file.Name, file.Size, fi.Size()))
			continue
		}
		result.PresentFiles++
	}

	return result, nil
}
