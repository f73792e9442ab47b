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
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/retry"

	appLog "focuscal/internal/log"
)

const (
	defaultAttempts   = 3
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	defaultCacheDir   = "./var/ics-cache"
)

// Source represents a single ICS subscription source.
type Source struct {
	// ID is an internal identifier (e.g., config ICS ID).
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused the cached body
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusError is returned when the feed answers with a non-success status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "ics fetch: unexpected status " + e.Status
}

// Fetcher fetches ICS feeds with HTTP caching (ETag / Last-Modified), a
// disk-backed body cache, and retries for transient failures.
type Fetcher struct {
	client     *http.Client
	cacheDir   string
	attempts   uint
	retryDelay time.Duration
}

// NewFetcher creates a new ICS Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata will be stored. attempts and timeout fall back to 3 and 15s when
// not positive.
func NewFetcher(cacheDir string, attempts int, timeout time.Duration) *Fetcher {
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		cacheDir:   cacheDir,
		attempts:   uint(attempts),
		retryDelay: defaultRetryDelay,
	}
}

// FetchAll fetches all given sources and returns individual results.
// Errors for individual sources are logged and returned in the error slice.
//
// The returned slice of results will only contain entries for sources that
// successfully produced a body (either from network or cache).
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	errs := make([]error, 0)

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne fetches a single ICS source, honoring ETag and Last-Modified.
// Network errors, 429 and 5xx responses are retried. When every attempt
// fails the last cached body is served instead, if one exists.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	cachePath := f.cachePathForURL(src.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	appLog.Info("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	var (
		status int
		body   []byte
		header http.Header
	)
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			// Conditional headers only make sense when we can serve the cached body.
			if len(cachedBody) > 0 {
				if meta.ETag != "" {
					req.Header.Set("If-None-Match", meta.ETag)
				}
				if meta.LastModified != "" {
					req.Header.Set("If-Modified-Since", meta.LastModified)
				}
			}

			resp, err := f.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
			switch {
			case resp.StatusCode == http.StatusOK:
				b, readErr := io.ReadAll(resp.Body)
				if readErr != nil {
					return readErr
				}
				status, body, header = resp.StatusCode, b, resp.Header
				return nil
			case resp.StatusCode == http.StatusNotModified:
				status = resp.StatusCode
				return nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
				return statusErr
			default:
				return retry.Unrecoverable(statusErr)
			}
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			appLog.Debug("retrying ics fetch", "id", src.ID, "url", redactURL(src.URL), "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch failed, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("fetch %s: %w", redactURL(src.URL), err)
	}

	if status == http.StatusNotModified {
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}

	newMeta := cacheEntry{
		URL:          src.URL,
		ETag:         header.Get("ETag"),
		LastModified: header.Get("Last-Modified"),
	}
	if err := f.saveCache(cachePath, newMeta, body); err != nil {
		// Log but still return the freshly fetched body.
		appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
	}

	appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "status", status, "bytes", len(body))
	return FetchResult{Source: src, Body: body}, nil
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host of a feed URL; paths and query strings of
// private calendar links often carry secrets.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
