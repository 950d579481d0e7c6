package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/wmd/internal/dump"
	"github.com/ligustah/wmd/internal/httpcache"
	"github.com/ligustah/wmd/internal/metadata"
	"github.com/ligustah/wmd/internal/progress"
)

// CacheDirName is the default HTTP cache directory below the output root.
const CacheDirName = "_http_cache"

// Config defines configuration for the wmd CLI.
type Config struct {
	OutDir        string        `yaml:"out_dir"`
	Dump          string        `yaml:"dump"`
	Version       string        `yaml:"version"`
	Job           string        `yaml:"job"`
	FileNameRegex string        `yaml:"file_name_regex"`
	MirrorURL     string        `yaml:"mirror_url"`
	CanonicalURL  string        `yaml:"canonical_url"`
	HTTPCacheMode string        `yaml:"http_cache_mode"`
	CacheURL      string        `yaml:"cache_url"`
	KeepTempDir   bool          `yaml:"keep_temp_dir"`
	Progress      bool          `yaml:"progress"`
	BufferSize    int64         `yaml:"buffer_size"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior of the HTTP clients.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Dump:          "enwiki",
		Version:       dump.LatestToken,
		Job:           "metacurrentdumprecombine",
		CanonicalURL:  metadata.DefaultBaseURL,
		HTTPCacheMode: httpcache.ModeDefault.String(),
		BufferSize:    4 * 1024 * 1024, // 4MiB
		HTTPTimeout:   30 * time.Second,
		Retry: RetryConfig{
			Attempts:   0,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	OutDir        string          `yaml:"out_dir"`
	Dump          string          `yaml:"dump"`
	Version       string          `yaml:"version"`
	Job           string          `yaml:"job"`
	FileNameRegex string          `yaml:"file_name_regex"`
	MirrorURL     string          `yaml:"mirror_url"`
	CanonicalURL  string          `yaml:"canonical_url"`
	HTTPCacheMode string          `yaml:"http_cache_mode"`
	CacheURL      string          `yaml:"cache_url"`
	KeepTempDir   bool            `yaml:"keep_temp_dir"`
	Progress      bool            `yaml:"progress"`
	BufferSize    string          `yaml:"buffer_size"`
	HTTPTimeout   string          `yaml:"http_timeout"`
	Retry         yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	setString(&cfg.OutDir, yc.OutDir)
	setString(&cfg.Dump, yc.Dump)
	setString(&cfg.Version, yc.Version)
	setString(&cfg.Job, yc.Job)
	setString(&cfg.FileNameRegex, yc.FileNameRegex)
	setString(&cfg.MirrorURL, yc.MirrorURL)
	setString(&cfg.CanonicalURL, yc.CanonicalURL)
	setString(&cfg.HTTPCacheMode, yc.HTTPCacheMode)
	setString(&cfg.CacheURL, yc.CacheURL)
	cfg.KeepTempDir = yc.KeepTempDir
	cfg.Progress = yc.Progress
	if yc.BufferSize != "" {
		size, err := progress.ParseBytes(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		cfg.BufferSize = size
	}
	if yc.HTTPTimeout != "" {
		d, err := time.ParseDuration(yc.HTTPTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse http_timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadDotEnv loads WMD_* defaults from a .env file. Variables already set in
// the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the WMD_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"WMD_OUT_DIR":         &c.OutDir,
		"WMD_DUMP":            &c.Dump,
		"WMD_VERSION":         &c.Version,
		"WMD_JOB":             &c.Job,
		"WMD_FILE_NAME_REGEX": &c.FileNameRegex,
		"WMD_MIRROR_URL":      &c.MirrorURL,
		"WMD_CANONICAL_URL":   &c.CanonicalURL,
		"WMD_HTTP_CACHE_MODE": &c.HTTPCacheMode,
		"WMD_CACHE_URL":       &c.CacheURL,
	}
	for name, dst := range strs {
		setString(dst, os.Getenv(name))
	}

	if v := os.Getenv("WMD_KEEP_TEMP_DIR"); v != "" {
		c.KeepTempDir = v == "true" || v == "1"
	}
	if v := os.Getenv("WMD_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("WMD_BUFFER_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse WMD_BUFFER_SIZE: %w", err)
		}
		c.BufferSize = size
	}
	if v := os.Getenv("WMD_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse WMD_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("WMD_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse WMD_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("WMD_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse WMD_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("WMD_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse WMD_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration of a download run.
func (c *Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("config: out_dir is required")
	}
	return c.ValidateMetadata()
}

// ValidateMetadata validates the settings needed to query metadata only. The
// output directory is not required.
func (c *Config) ValidateMetadata() error {
	if c.Dump == "" {
		return errors.New("config: dump is required")
	}
	// Names starting with "_" are reserved for the staging and cache directories.
	if strings.HasPrefix(c.Dump, "_") || strings.ContainsAny(c.Dump, `/\`) || c.Dump == "." || c.Dump == ".." {
		return fmt.Errorf("config: invalid dump name %q", c.Dump)
	}
	if c.Job == "" {
		return errors.New("config: job is required")
	}
	if _, err := c.VersionSpec(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.FileFilter(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := validateHTTPURL("canonical_url", c.CanonicalURL); err != nil {
		return err
	}
	if c.MirrorURL != "" {
		if err := validateHTTPURL("mirror_url", c.MirrorURL); err != nil {
			return err
		}
	}
	if _, err := c.CacheMode(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.BufferSize <= 0 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.HTTPTimeout < 0 {
		return errors.New("config: http_timeout must not be negative")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s must be an http or https URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("config: %s has no host: %q", field, raw)
	}
	return nil
}

// VersionSpec parses the configured version.
func (c *Config) VersionSpec() (dump.VersionSpec, error) {
	return dump.ParseVersionSpec(c.Version)
}

// FileFilter compiles the file name regex. An empty regex yields nil, which
// matches every file.
func (c *Config) FileFilter() (*regexp.Regexp, error) {
	if c.FileNameRegex == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.FileNameRegex)
	if err != nil {
		return nil, fmt.Errorf("invalid file_name_regex %q: %w", c.FileNameRegex, err)
	}
	return re, nil
}

// CacheMode parses the configured HTTP cache mode.
func (c *Config) CacheMode() (httpcache.Mode, error) {
	return httpcache.ParseMode(c.HTTPCacheMode)
}

// CacheLocation returns the bucket URL or directory backing the HTTP cache,
// or "" when neither a cache URL nor an output directory is configured.
func (c *Config) CacheLocation() string {
	if c.CacheURL != "" {
		return c.CacheURL
	}
	if c.OutDir == "" {
		return ""
	}
	return filepath.Join(c.OutDir, CacheDirName)
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	setString(&c.OutDir, override.OutDir)
	setString(&c.Dump, override.Dump)
	setString(&c.Version, override.Version)
	setString(&c.Job, override.Job)
	setString(&c.FileNameRegex, override.FileNameRegex)
	setString(&c.MirrorURL, override.MirrorURL)
	setString(&c.CanonicalURL, override.CanonicalURL)
	setString(&c.HTTPCacheMode, override.HTTPCacheMode)
	setString(&c.CacheURL, override.CacheURL)
	if override.KeepTempDir {
		c.KeepTempDir = override.KeepTempDir
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.HTTPTimeout != 0 {
		c.HTTPTimeout = override.HTTPTimeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
