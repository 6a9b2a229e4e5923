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
	"strings"
	"time"

	appLog "weekcal/internal/log"
	"weekcal/internal/storage"
)

// maxBodyBytes bounds a single feed download.
const maxBodyBytes = 10 << 20

// Source is one subscribed ICS feed.
type Source struct {
	// ID is an internal identifier used for logging.
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchResult contains the outcome of fetching a single source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // true if the cached body was reused (304 or fetch failure)
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds honoring ETag / Last-Modified. The last good
// body and its validators are cached in a KV so a flaky feed keeps
// importing its previous content.
type Fetcher struct {
	client *http.Client
	cache  storage.KV
}

// NewFetcher creates a Fetcher caching into kv. A nil kv disables caching.
func NewFetcher(kv storage.KV, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: kv}
}

// FetchAll fetches every source. Failures are logged and returned in the
// error slice; results only hold sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	errs := make([]error, 0)

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", src.ID, err))
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne fetches a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	key := cacheKey(src.URL)
	meta := f.loadMeta(key)
	cachedBody := f.loadBody(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	cached := FetchResult{Source: src, Body: cachedBody, FromCache: true}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return cached, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return FetchResult{}, err
		}
		f.saveCache(key, cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}, body)

		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return cached, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL))
			return cached, nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "weekcal:ics:" + hex.EncodeToString(sum[:8])
}

func (f *Fetcher) loadMeta(key string) cacheEntry {
	var meta cacheEntry
	if f.cache == nil {
		return meta
	}
	data, err := f.cache.Get(key + ":meta")
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}
	}
	return meta
}

func (f *Fetcher) loadBody(key string) []byte {
	if f.cache == nil {
		return nil
	}
	body, err := f.cache.Get(key + ":body")
	if err != nil {
		return nil
	}
	return body
}

func (f *Fetcher) saveCache(key string, meta cacheEntry, body []byte) {
	if f.cache == nil {
		return
	}
	// Write body first so meta never points at a missing body.
	if err := f.cache.Set(key+":body", body); err != nil {
		appLog.Error("ics cache save failed", err, "url", redactURL(meta.URL))
		return
	}
	data, err := json.Marshal(&meta)
	if err == nil {
		err = f.cache.Set(key+":meta", data)
	}
	if err != nil {
		appLog.Error("ics cache save failed", err, "url", redactURL(meta.URL))
	}
}

// redactURL keeps scheme and host only, since feed URLs often embed
// private tokens.
//
//	https://example.com/private.ics?token=abcd -> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	_, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "ics://...(redacted)"
	}
	host, _, _ := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, "?")
	return u[:len(u)-len(rest)] + host + redactedSuffix
}
