package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/wmd/internal/config"
	"github.com/ligustah/wmd/internal/dump"
	wmdhttp "github.com/ligustah/wmd/internal/http"
	"github.com/ligustah/wmd/internal/httpcache"
	"github.com/ligustah/wmd/internal/metadata"
)

// commonFlags are the options shared by every command. Only flags given on
// the command line override the file and environment configuration.
type commonFlags struct {
	configPath    string
	outDir        string
	dump          string
	version       string
	job           string
	fileNameRegex string
	canonicalURL  string
	httpCacheMode string
	cacheURL      string
	json          bool
	verbose       bool
}

func newCommonFlags(set *flag.FlagSet, withJob bool) *commonFlags {
	f := &commonFlags{}
	set.StringVar(&f.configPath, "config", "", "YAML configuration file")
	set.StringVar(&f.outDir, "out-dir", "", "Output root directory")
	set.StringVar(&f.dump, "dump", "", `Dump name, e.g. "enwiki" (default "enwiki")`)
	set.StringVar(&f.canonicalURL, "canonical-url", "", "Canonical dumps host for metadata (default "+metadata.DefaultBaseURL+")")
	set.StringVar(&f.httpCacheMode, "http-cache-mode", "", "Metadata cache mode: Default, NoStore, Reload, NoCache, ForceCache, OnlyIfCached, IgnoreRules")
	set.StringVar(&f.cacheURL, "cache-url", "", "Bucket URL for the metadata cache (default {out-dir}/_http_cache)")
	set.BoolVar(&f.json, "json", false, "Print machine-readable JSON")
	set.BoolVar(&f.verbose, "v", false, "Verbose (debug) logging")
	if withJob {
		set.StringVar(&f.version, "version", "", `Dump version: "latest" or YYYYMMDD (default "latest")`)
		set.StringVar(&f.job, "job", "", `Job name (default "metacurrentdumprecombine")`)
		set.StringVar(&f.fileNameRegex, "file-name-regex", "", "Only process files whose name matches this regular expression")
	}
	return f
}

// overrides returns the configuration given by the command line flags.
func (f *commonFlags) overrides() config.Config {
	return config.Config{
		OutDir:        f.outDir,
		Dump:          f.dump,
		Version:       f.version,
		Job:           f.job,
		FileNameRegex: f.fileNameRegex,
		CanonicalURL:  f.canonicalURL,
		HTTPCacheMode: f.httpCacheMode,
		CacheURL:      f.cacheURL,
	}
}

// loadConfig layers defaults, the config file, the environment (seeded from
// .env) and the flag overrides.
func loadConfig(configPath string, overrides config.Config) (config.Config, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if configPath != "" {
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg.Merge(overrides), nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[wmd] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func httpOptions(cfg config.Config, timeout bool) wmdhttp.Options {
	opts := wmdhttp.DefaultOptions()
	if timeout {
		opts.Timeout = cfg.HTTPTimeout
	}
	opts.RetryAttempts = cfg.Retry.Attempts
	opts.RetryBackoff = cfg.Retry.Backoff
	opts.RetryMaxBackoff = cfg.Retry.MaxBackoff
	return opts
}

// newMetadataClient builds the canonical metadata client. Requests go through
// the HTTP cache when a cache location is configured. The returned close
// function releases the cache bucket.
func newMetadataClient(ctx context.Context, cfg config.Config, logger *slog.Logger) (*metadata.Client, func(), error) {
	client := wmdhttp.NewClient(httpOptions(cfg, true))

	location := cfg.CacheLocation()
	if location == "" {
		return metadata.NewClient(client, cfg.CanonicalURL, logger), func() {}, nil
	}

	mode, err := cfg.CacheMode()
	if err != nil {
		return nil, nil, err
	}
	bucket, err := httpcache.OpenBucket(ctx, location)
	if err != nil {
		return nil, nil, fmt.Errorf("open http cache %s: %w", location, err)
	}
	logger.Debug("Using HTTP cache", slog.String("location", location), slog.String("mode", mode.String()))

	cache := httpcache.New(client, bucket, httpcache.Options{Mode: mode, Logger: logger})
	closeFn := func() {
		if err := bucket.Close(); err != nil {
			logger.Warn("Cannot close http cache", slog.Any("error", err))
		}
	}
	return metadata.NewClient(cache, cfg.CanonicalURL, logger), closeFn, nil
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, dump.ErrMetadataUnavailable):
		return ExitMetadataUnavailable
	case errors.Is(err, dump.ErrNoVersionsFound),
		errors.Is(err, dump.ErrVersionNotFound),
		errors.Is(err, dump.ErrJobNotFound),
		errors.Is(err, dump.ErrJobNotDone):
		return ExitNotFound
	case errors.Is(err, dump.ErrDownloadFailed):
		return ExitDownloadFailed
	case errors.Is(err, dump.ErrStagingCreateFailed),
		errors.As(err, &pathErr),
		errors.As(err, &linkErr):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
