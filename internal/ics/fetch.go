package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"planner/internal/config"
	appLog "planner/internal/log"
)

// MaxFeedBytes bounds a downloaded calendar body.
const MaxFeedBytes = 8 << 20

// ErrFeedTooLarge is returned for a body over the fetcher's size limit.
// Such a body is never cached.
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// Source is a calendar feed to import tasks from.
type Source struct {
	// ID names the feed in logs. Defaults to the redacted URL.
	ID  string
	URL string
}

// FetchResult is the outcome of fetching a single Source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // body reused after 304 or a failed request
}

// validators are the conditional-request headers remembered per feed.
type validators struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func (v validators) apply(req *http.Request) {
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
}

// feedCache stores one body and its validators per feed URL, as
// <hash>.ics and <hash>.json under dir.
type feedCache struct {
	dir string
}

func (c feedCache) key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8]))
}

// load returns the cached body and validators. A missing or corrupt entry
// yields an empty body and zero validators.
func (c feedCache) load(rawURL string) ([]byte, validators) {
	base := c.key(rawURL)
	body, err := os.ReadFile(base + ".ics")
	if err != nil {
		return nil, validators{}
	}
	var v validators
	if data, err := os.ReadFile(base + ".json"); err == nil {
		if err := json.Unmarshal(data, &v); err != nil {
			v = validators{}
		}
	}
	return body, v
}

func (c feedCache) store(rawURL string, body []byte, v validators) error {
	base := c.key(rawURL)
	// Body first so validators never describe a body we do not have.
	if err := config.WriteFileAtomic(base+".ics", body, ".feed-*.tmp"); err != nil {
		return err
	}
	v.FetchedAt = time.Now().UTC()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(base+".json", data, ".feed-*.tmp")
}

// Fetcher downloads ICS feeds with conditional requests and a disk cache,
// serving the cached body when the remote is unreachable or failing.
type Fetcher struct {
	client   *http.Client
	cache    feedCache
	maxBytes int64
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = config.DefaultConfig().ICSCacheDir
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cache:    feedCache{dir: cacheDir},
		maxBytes: MaxFeedBytes,
	}
}

// FetchAll fetches every source. Failed sources are logged and joined
// into the returned error; the results hold the sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, error) {
	var (
		out  []FetchResult
		errs []error
	)
	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("feed fetch failed", err, "feed", src.ID)
			errs = append(errs, fmt.Errorf("%s: %w", redactURL(src.URL), err))
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// FetchOne fetches a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}
	if src.ID == "" {
		src.ID = redactURL(src.URL)
	}

	cachedBody, v := f.cache.load(src.URL)
	fallback := func(cause error) (FetchResult, error) {
		if len(cachedBody) == 0 {
			return FetchResult{}, cause
		}
		appLog.Error("feed unavailable, serving cached copy", cause, "feed", src.ID)
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if len(cachedBody) > 0 {
		v.apply(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && len(cachedBody) > 0:
		appLog.Debug("feed not modified", "feed", src.ID)
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	case resp.StatusCode != http.StatusOK:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return fallback(err)
	}
	if int64(len(body)) > f.maxBytes {
		return fallback(fmt.Errorf("%w of %d bytes", ErrFeedTooLarge, f.maxBytes))
	}
	fresh := validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if err := f.cache.store(src.URL, body, fresh); err != nil {
		appLog.Error("feed cache write failed", err, "feed", src.ID)
	}
	appLog.Info("feed fetched", "feed", src.ID, "bytes", len(body))
	return FetchResult{Source: src, Body: body}, nil
}

// redactURL keeps scheme and host only; feed URLs often carry secrets in
// their path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
