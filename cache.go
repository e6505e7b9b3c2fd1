package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// cachedResponse stores the response fields we care about in a simple JSON
// format on disk.
type cachedResponse struct {
	Status     string              `json:"status"`
	StatusCode int                 `json:"status_code"`
	Proto      string              `json:"proto"`
	Header     map[string][]string `json:"header"`
	Body       []byte              `json:"body"`
}

// CachingRoundTripper caches GET responses on disk, keyed by URL. It fronts
// the product catalog lookups, which are stable within a day and get
// re-queried on every candidate evaluation. Only GET is ever cached: the
// GraphQL switch protocol goes over POST and must never be replayed from
// disk.
type CachingRoundTripper struct {
	// UnderlyingTransport is used on a cache miss; nil means
	// http.DefaultTransport.
	UnderlyingTransport http.RoundTripper

	// CacheDir is the directory where response files are stored.
	CacheDir string
}

func (c *CachingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := c.UnderlyingTransport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if req.Method != http.MethodGet {
		return transport.RoundTrip(req)
	}

	path := c.cacheFilePath(cacheKey(req.URL.String()))

	if data, err := os.ReadFile(path); err == nil {
		var cr cachedResponse
		if err := json.Unmarshal(data, &cr); err == nil {
			return buildHTTPResponse(req, cr), nil
		}
		// Corrupt cache entry; fall through and refetch.
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cr := cachedResponse{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
	// Only successful responses are worth keeping.
	if resp.StatusCode == http.StatusOK {
		if data, err := json.MarshalIndent(cr, "", "  "); err == nil {
			_ = os.WriteFile(path, data, 0644)
		}
	}

	return buildHTTPResponse(req, cr), nil
}

// cacheKey builds a SHA-256 hash string from the request URL.
func cacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])
}

func (c *CachingRoundTripper) cacheFilePath(key string) string {
	return filepath.Join(c.CacheDir, key+".json")
}

// buildHTTPResponse constructs a new *http.Response from cached data.
func buildHTTPResponse(req *http.Request, cr cachedResponse) *http.Response {
	return &http.Response{
		Status:        cr.Status,
		StatusCode:    cr.StatusCode,
		Proto:         cr.Proto,
		Header:        cr.Header,
		Body:          io.NopCloser(bytes.NewReader(cr.Body)),
		ContentLength: int64(len(cr.Body)),
		Request:       req,
	}
}
