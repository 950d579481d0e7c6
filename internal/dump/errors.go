package dump

import "errors"

// Error kinds reported by the acquisition pipeline. All are terminal for a run.
var (
	ErrMetadataUnavailable = errors.New("dump: canonical metadata unavailable")
	ErrNoVersionsFound     = errors.New("dump: no versions found")
	ErrVersionNotFound     = errors.New("dump: version not found")
	ErrJobNotFound         = errors.New("dump: job not found")
	ErrJobNotDone          = errors.New("dump: job not done")
	ErrStagingCreateFailed = errors.New("dump: could not create staging directory")
	ErrDownloadFailed      = errors.New("dump: download failed")
)
