package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligustah/wmd/internal/httpcache"
)

func validConfig() Config {
	cfg := Default()
	cfg.OutDir = "/data/dumps"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Dump != "enwiki" {
		t.Errorf("expected default dump enwiki, got %s", cfg.Dump)
	}
	if cfg.Version != "latest" {
		t.Errorf("expected default version latest, got %s", cfg.Version)
	}
	if cfg.Job != "metacurrentdumprecombine" {
		t.Errorf("expected default job metacurrentdumprecombine, got %s", cfg.Job)
	}
	if cfg.CanonicalURL != "https://dumps.wikimedia.org" {
		t.Errorf("expected default canonical URL, got %s", cfg.CanonicalURL)
	}
	if cfg.BufferSize != 4*1024*1024 {
		t.Errorf("expected default buffer size 4MiB, got %d", cfg.BufferSize)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("expected default http timeout 30s, got %v", cfg.HTTPTimeout)
	}
	if cfg.Retry.Attempts != 0 {
		t.Errorf("expected no retries by default, got %d", cfg.Retry.Attempts)
	}
	mode, err := cfg.CacheMode()
	if err != nil || mode != httpcache.ModeDefault {
		t.Errorf("expected default cache mode, got %v (%v)", mode, err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
out_dir: /srv/dumps
dump: dewiki
version: "20230301"
job: articlesdump
file_name_regex: '\.bz2$'
mirror_url: https://mirror.example.org/wikimedia
http_cache_mode: force-cache
keep_temp_dir: true
progress: true
buffer_size: 8MiB
http_timeout: 1m
retry:
  attempts: 3
  backoff: 2s
  max_backoff: 60s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.OutDir != "/srv/dumps" {
		t.Errorf("expected out dir /srv/dumps, got %s", cfg.OutDir)
	}
	if cfg.Dump != "dewiki" || cfg.Version != "20230301" || cfg.Job != "articlesdump" {
		t.Errorf("unexpected dump selection %s/%s/%s", cfg.Dump, cfg.Version, cfg.Job)
	}
	if cfg.FileNameRegex != `\.bz2$` {
		t.Errorf("expected regex, got %q", cfg.FileNameRegex)
	}
	if cfg.MirrorURL != "https://mirror.example.org/wikimedia" {
		t.Errorf("expected mirror URL, got %s", cfg.MirrorURL)
	}
	if cfg.CanonicalURL != "https://dumps.wikimedia.org" {
		t.Errorf("expected canonical URL preserved, got %s", cfg.CanonicalURL)
	}
	if !cfg.KeepTempDir || !cfg.Progress {
		t.Error("expected keep_temp_dir and progress true")
	}
	if cfg.BufferSize != 8*1024*1024 {
		t.Errorf("expected buffer size 8MiB, got %d", cfg.BufferSize)
	}
	if cfg.HTTPTimeout != time.Minute {
		t.Errorf("expected http timeout 1m, got %v", cfg.HTTPTimeout)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 60*time.Second {
		t.Errorf("expected retry max backoff 60s, got %v", cfg.Retry.MaxBackoff)
	}

	mode, err := cfg.CacheMode()
	if err != nil || mode != httpcache.ModeForceCache {
		t.Errorf("expected ForceCache, got %v (%v)", mode, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WMD_OUT_DIR", "/env/out")
	t.Setenv("WMD_DUMP", "frwiki")
	t.Setenv("WMD_VERSION", "20240101")
	t.Setenv("WMD_JOB", "xmlstubsdump")
	t.Setenv("WMD_FILE_NAME_REGEX", "stub")
	t.Setenv("WMD_MIRROR_URL", "http://mirror.local")
	t.Setenv("WMD_HTTP_CACHE_MODE", "NoStore")
	t.Setenv("WMD_CACHE_URL", "mem://")
	t.Setenv("WMD_KEEP_TEMP_DIR", "1")
	t.Setenv("WMD_PROGRESS", "true")
	t.Setenv("WMD_BUFFER_SIZE", "1MB")
	t.Setenv("WMD_HTTP_TIMEOUT", "5s")
	t.Setenv("WMD_RETRY_ATTEMPTS", "2")
	t.Setenv("WMD_RETRY_BACKOFF", "500ms")
	t.Setenv("WMD_RETRY_MAX_BACKOFF", "10s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.OutDir != "/env/out" || cfg.Dump != "frwiki" || cfg.Version != "20240101" || cfg.Job != "xmlstubsdump" {
		t.Errorf("unexpected selection %+v", cfg)
	}
	if cfg.FileNameRegex != "stub" || cfg.MirrorURL != "http://mirror.local" {
		t.Errorf("unexpected filter or mirror %q %q", cfg.FileNameRegex, cfg.MirrorURL)
	}
	if cfg.HTTPCacheMode != "NoStore" || cfg.CacheURL != "mem://" {
		t.Errorf("unexpected cache settings %q %q", cfg.HTTPCacheMode, cfg.CacheURL)
	}
	if !cfg.KeepTempDir || !cfg.Progress {
		t.Error("expected keep temp dir and progress true")
	}
	if cfg.BufferSize != 1000*1000 {
		t.Errorf("expected buffer size 1MB, got %d", cfg.BufferSize)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("expected http timeout 5s, got %v", cfg.HTTPTimeout)
	}
	if cfg.Retry.Attempts != 2 {
		t.Errorf("expected retry attempts 2, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 10*time.Second {
		t.Errorf("expected retry max backoff 10s, got %v", cfg.Retry.MaxBackoff)
	}
	if cfg.CacheLocation() != "mem://" {
		t.Errorf("expected cache URL to win, got %s", cfg.CacheLocation())
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	for _, name := range []string{"WMD_BUFFER_SIZE", "WMD_HTTP_TIMEOUT", "WMD_RETRY_ATTEMPTS", "WMD_RETRY_BACKOFF"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "bogus")
			cfg := Default()
			if err := cfg.LoadFromEnv(); err == nil {
				t.Errorf("expected error for %s=bogus", name)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("WMD_DUMP=itwiki\nWMD_JOB=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	// Variables already present in the environment take precedence.
	t.Setenv("WMD_JOB", "from-env")
	t.Setenv("WMD_DUMP", "")
	os.Unsetenv("WMD_DUMP")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("WMD_DUMP") })

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Dump != "itwiki" {
		t.Errorf("expected dump from .env, got %s", cfg.Dump)
	}
	if cfg.Job != "from-env" {
		t.Errorf("expected job from environment, got %s", cfg.Job)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "valid exact version", modify: func(c *Config) { c.Version = "20230301" }},
		{name: "valid mirror", modify: func(c *Config) { c.MirrorURL = "http://mirror.example.org/dumps" }},
		{name: "missing out dir", modify: func(c *Config) { c.OutDir = "" }, wantErr: true},
		{name: "missing dump", modify: func(c *Config) { c.Dump = "" }, wantErr: true},
		{name: "missing job", modify: func(c *Config) { c.Job = "" }, wantErr: true},
		{name: "dump named like staging dir", modify: func(c *Config) { c.Dump = "_temp" }, wantErr: true},
		{name: "dump named like cache dir", modify: func(c *Config) { c.Dump = CacheDirName }, wantErr: true},
		{name: "dump with path separator", modify: func(c *Config) { c.Dump = "../enwiki" }, wantErr: true},
		{name: "short version", modify: func(c *Config) { c.Version = "2023031" }, wantErr: true},
		{name: "version with letters", modify: func(c *Config) { c.Version = "2023030a" }, wantErr: true},
		{name: "bad regex", modify: func(c *Config) { c.FileNameRegex = "(" }, wantErr: true},
		{name: "ftp mirror", modify: func(c *Config) { c.MirrorURL = "ftp://mirror.example.org" }, wantErr: true},
		{name: "mirror without host", modify: func(c *Config) { c.MirrorURL = "https://" }, wantErr: true},
		{name: "bad canonical", modify: func(c *Config) { c.CanonicalURL = "dumps.wikimedia.org" }, wantErr: true},
		{name: "bad cache mode", modify: func(c *Config) { c.HTTPCacheMode = "sometimes" }, wantErr: true},
		{name: "zero buffer", modify: func(c *Config) { c.BufferSize = 0 }, wantErr: true},
		{name: "negative retries", modify: func(c *Config) { c.Retry.Attempts = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMetadataWithoutOutDir(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateMetadata(); err != nil {
		t.Errorf("ValidateMetadata: %v", err)
	}
	if cfg.CacheLocation() != "" {
		t.Errorf("expected no cache location, got %s", cfg.CacheLocation())
	}
}

func TestFileFilter(t *testing.T) {
	cfg := Default()
	re, err := cfg.FileFilter()
	if err != nil || re != nil {
		t.Errorf("expected nil filter for empty regex, got %v (%v)", re, err)
	}

	cfg.FileNameRegex = `pages-meta-current\d*\.xml`
	re, err = cfg.FileFilter()
	if err != nil {
		t.Fatalf("FileFilter: %v", err)
	}
	if !re.MatchString("enwiki-20230301-pages-meta-current1.xml-p1p41242.bz2") {
		t.Error("expected match")
	}
	if re.MatchString("enwiki-20230301-stub-articles.xml.gz") {
		t.Error("expected no match")
	}
}

func TestCacheLocation(t *testing.T) {
	cfg := validConfig()
	if got := cfg.CacheLocation(); got != filepath.Join("/data/dumps", "_http_cache") {
		t.Errorf("expected cache below out dir, got %s", got)
	}
	cfg.CacheURL = "gs://bucket/wmd"
	if got := cfg.CacheLocation(); got != "gs://bucket/wmd" {
		t.Errorf("expected cache URL, got %s", got)
	}
}

func TestMerge(t *testing.T) {
	base := validConfig()
	base.MirrorURL = "https://mirror.example.org"

	override := Config{
		Job:         "articlesdump",
		KeepTempDir: true,
		// Leave other fields at zero values
	}

	merged := base.Merge(override)

	if merged.OutDir != "/data/dumps" {
		t.Errorf("expected OutDir preserved, got %s", merged.OutDir)
	}
	if merged.MirrorURL != "https://mirror.example.org" {
		t.Errorf("expected MirrorURL preserved, got %s", merged.MirrorURL)
	}
	if merged.BufferSize != 4*1024*1024 {
		t.Errorf("expected BufferSize preserved, got %d", merged.BufferSize)
	}
	if merged.Job != "articlesdump" {
		t.Errorf("expected Job overridden, got %s", merged.Job)
	}
	if !merged.KeepTempDir {
		t.Error("expected KeepTempDir overridden")
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadYAMLInvalidBufferSize(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("buffer_size: lots\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid buffer_size")
	}
}
