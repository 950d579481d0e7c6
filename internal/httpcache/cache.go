package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/pquerna/cachecontrol/cacheobject"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	wmdhttp "github.com/ligustah/wmd/internal/http"
)

// ErrNotCached is returned in ModeOnlyIfCached when no entry exists.
var ErrNotCached = errors.New("httpcache: response not cached")

// Fetcher performs the upstream request. It is implemented by the client in
// package internal/http.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*wmdhttp.Response, error)
}

// Options configures the cache.
type Options struct {
	Mode Mode

	// Logger receives hit/miss debug logs. Default: slog.Default()
	Logger *slog.Logger

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// Cache is a read-through response cache for GET requests, persisted in a
// gocloud bucket.
type Cache struct {
	fetcher Fetcher
	bucket  *blob.Bucket
	opts    Options
	log     *slog.Logger
}

// New creates a cache in front of fetcher. The bucket is not closed by the cache.
func New(fetcher Fetcher, bucket *blob.Bucket, opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		fetcher: fetcher,
		bucket:  bucket,
		opts:    opts,
		log:     opts.Logger.With(slog.String("component", "httpcache"), slog.String("mode", opts.Mode.String())),
	}
}

// OpenBucket opens the bucket backing the cache. location is either a gocloud
// bucket URL (file://, mem://, s3://, gs://, ...) or a plain directory path,
// which is created if needed.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	if strings.Contains(location, "://") {
		return blob.OpenBucket(ctx, location)
	}
	dir, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	return fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
}

type entry struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`

	// ExpiresAt ends the freshness lifetime. Zero means stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// Get returns the body for url, from the cache or the network according to
// the configured mode.
func (c *Cache) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	key := cacheKey(url)
	now := c.opts.Now()
	log := c.log.With(slog.String("url", url))

	var cached *entry
	if c.opts.Mode != ModeNoStore && c.opts.Mode != ModeReload {
		e, err := c.load(ctx, key)
		if err != nil {
			log.Warn("Cannot read cache entry, treating as miss", slog.Any("error", err))
		}
		cached = e
	}

	switch c.opts.Mode {
	case ModeOnlyIfCached:
		if cached == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, url)
		}
		log.Debug("Cache hit")
		return cached.body(), nil
	case ModeForceCache, ModeIgnoreRules:
		if cached != nil {
			log.Debug("Cache hit")
			return cached.body(), nil
		}
	case ModeDefault:
		if cached != nil && cached.fresh(now) {
			log.Debug("Cache hit")
			return cached.body(), nil
		}
	}

	var header http.Header
	if cached != nil {
		header = cached.validators()
	}

	resp, err := c.fetcher.Fetch(ctx, url, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if cached == nil {
			return nil, fmt.Errorf("get %s: unexpected 304 without a cached entry", url)
		}
		log.Debug("Cache entry revalidated")
		cached.refresh(resp.Header, now)
		if c.storable(cached, now) {
			c.store(ctx, key, cached)
		}
		return cached.body(), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	e := &entry{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		StoredAt:   now,
	}
	if c.storable(e, now) {
		c.store(ctx, key, e)
	}
	log.Debug("Cache miss", slog.Int("bytes", len(body)))

	return e.body(), nil
}

func (c *Cache) storable(e *entry, now time.Time) bool {
	storable := e.analyse(now)
	switch c.opts.Mode {
	case ModeNoStore:
		return false
	case ModeIgnoreRules:
		return true
	}
	return storable
}

func (c *Cache) load(ctx context.Context, key string) (*entry, error) {
	data, err := c.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, nil
}

// store is best effort: a failed write only costs a refetch later.
func (c *Cache) store(ctx context.Context, key string, e *entry) {
	data, err := json.Marshal(e)
	if err != nil {
		c.log.Warn("Cannot encode cache entry", slog.String("url", e.URL), slog.Any("error", err))
		return
	}
	err = c.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/json"})
	if err != nil {
		c.log.Warn("Cannot write cache entry", slog.String("url", e.URL), slog.Any("error", err))
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "responses/" + hex.EncodeToString(sum[:]) + ".json"
}

func (e *entry) body() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(e.Body))
}

// validators returns the conditional request headers for revalidation.
func (e *entry) validators() http.Header {
	h := http.Header{}
	if etag := e.Header.Get("ETag"); etag != "" {
		h.Set("If-None-Match", etag)
	}
	if lm := e.Header.Get("Last-Modified"); lm != "" {
		h.Set("If-Modified-Since", lm)
	}
	if len(h) == 0 {
		return nil
	}
	return h
}

// refresh applies the headers of a 304 response.
func (e *entry) refresh(h http.Header, now time.Time) {
	if e.Header == nil {
		e.Header = http.Header{}
	}
	for _, k := range []string{"Cache-Control", "Date", "ETag", "Expires", "Last-Modified"} {
		if v := h.Get(k); v != "" {
			e.Header.Set(k, v)
		}
	}
	e.StoredAt = now
}

// analyse runs the RFC 7234 rules of cacheobject over the stored response as
// seen at now. It reports whether the response may be stored and sets
// ExpiresAt. The cache is private to one user, so Cache-Control: private does
// not prevent storage.
func (e *entry) analyse(now time.Time) bool {
	reqDir, err := cacheobject.ParseRequestCacheControl("")
	if err != nil {
		return false
	}
	respDir, err := cacheobject.ParseResponseCacheControl(e.Header.Get("Cache-Control"))
	if err != nil {
		e.ExpiresAt = time.Time{}
		return false
	}
	expires, _ := http.ParseTime(e.Header.Get("Expires"))
	date, _ := http.ParseTime(e.Header.Get("Date"))
	lastModified, _ := http.ParseTime(e.Header.Get("Last-Modified"))

	obj := cacheobject.Object{
		RespDirectives:         respDir,
		RespHeaders:            e.Header,
		RespStatusCode:         e.StatusCode,
		RespExpiresHeader:      expires,
		RespDateHeader:         date,
		RespLastModifiedHeader: lastModified,

		ReqDirectives: reqDir,
		ReqHeaders:    http.Header{},
		ReqMethod:     http.MethodGet,

		NowUTC: now.UTC(),
	}
	rv := cacheobject.ObjectResults{}
	cacheobject.CachableObject(&obj, &rv)
	cacheobject.ExpirationObject(&obj, &rv)

	e.ExpiresAt = rv.OutExpirationTime
	if respDir.NoCachePresent {
		e.ExpiresAt = time.Time{}
	}

	if rv.OutErr != nil {
		return false
	}
	for _, reason := range rv.OutReasons {
		if reason != cacheobject.ReasonResponsePrivate {
			return false
		}
	}
	return true
}

func (e *entry) fresh(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.Before(e.ExpiresAt)
}
