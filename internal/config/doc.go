// Package config defines configuration structures for the wmd CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (WMD_ prefix), optionally seeded from a .env file
//   - YAML configuration file
//
// Later sources override earlier ones: defaults, file, environment, flags.
//
// # Structure
//
//	type Config struct {
//	    OutDir        string
//	    Dump          string
//	    Version       string // "latest" or YYYYMMDD
//	    Job           string
//	    FileNameRegex string
//	    MirrorURL     string
//	    CanonicalURL  string
//	    HTTPCacheMode string
//	    CacheURL      string
//	    KeepTempDir   bool
//	    Progress      bool
//	    BufferSize    int64
//	    HTTPTimeout   time.Duration
//	    Retry         RetryConfig
//	}
package config
