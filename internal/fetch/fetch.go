// Package fetch retrieves article pages linked from newsletters.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/letterdigest/internal/cache"
)

// DefaultMaxBytes caps how much of a page body is read.
const DefaultMaxBytes = 4 << 20

// Page is a fetched HTML document.
type Page struct {
	URL         string
	FinalURL    string
	ContentType string
	Body        []byte
	FromCache   bool
}

// Client wraps http.Client with per-request timeouts, bounded retry on
// transient errors, a redirect cap, a concurrency gate and an optional
// on-disk cache.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// MaxBytes caps the body size read. Zero means DefaultMaxBytes.
	MaxBytes int64
	// Cache, when set, is revalidated with ETag/Last-Modified.
	Cache *cache.PageCache
	// BypassCache fetches fresh without conditional headers but still saves.
	BypassCache bool
	// RedirectMaxHops caps redirect following. Zero means 10; tracking
	// redirectors commonly chain several hops.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

type response struct {
	page         Page
	etag         string
	lastModified string
	status       int
}

var errServer = errors.New("server error")

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirect()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirect()}
}

// Get fetches rawURL, following redirects. A 304 answer is served from the
// cache together with the final URL recorded when the page was stored.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	var cached *cache.PageEntry
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil {
			cached = meta
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.tryOnce(ctx, rawURL, cached)
		if err == nil {
			return c.finish(ctx, rawURL, resp, cached)
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return Page{}, lastErr
}

func (c *Client) finish(ctx context.Context, rawURL string, resp response, cached *cache.PageEntry) (Page, error) {
	if resp.status == http.StatusNotModified && cached != nil && c.Cache != nil {
		body, err := c.Cache.LoadBody(ctx, rawURL)
		if err == nil {
			return Page{URL: rawURL, FinalURL: cached.FinalURL, ContentType: cached.ContentType, Body: body, FromCache: true}, nil
		}
		return Page{}, fmt.Errorf("cached body missing for %s: %w", rawURL, err)
	}
	if c.Cache != nil && resp.status == http.StatusOK {
		entry := cache.PageEntry{URL: rawURL, FinalURL: resp.page.FinalURL, ContentType: resp.page.ContentType, ETag: resp.etag, LastModified: resp.lastModified}
		if err := c.Cache.Save(ctx, entry, resp.page.Body); err != nil {
			log.Debug().Err(err).Str("url", rawURL).Msg("fetch: cache save failed")
		}
	}
	log.Debug().Str("url", rawURL).Str("final", resp.page.FinalURL).Str("size", humanize.Bytes(uint64(len(resp.page.Body)))).Msg("fetch: page")
	return resp.page, nil
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, cached *cache.PageEntry) (response, error) {
	c.acquire()
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return response{}, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, etag: resp.Header.Get("ETag"), lastModified: resp.Header.Get("Last-Modified")}
	switch {
	case resp.StatusCode >= 500:
		return out, fmt.Errorf("%w: %d", errServer, resp.StatusCode)
	case resp.StatusCode == http.StatusNotModified:
		return out, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return out, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return out, fmt.Errorf("unsupported content type: %s", contentType)
	}
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return out, fmt.Errorf("read body: %w", err)
	}
	out.page = Page{URL: rawURL, FinalURL: resp.Request.URL.String(), ContentType: contentType, Body: b}
	return out, nil
}

// isTransient treats server errors and timeouts as worth retrying.
func isTransient(err error) bool {
	return errors.Is(err, errServer) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) checkRedirect() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 10
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
