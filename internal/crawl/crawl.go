// Package crawl resolves article links found in newsletters to the pages
// they finally land on and reads each page's canonical URL.
package crawl

import (
    "bytes"
    "context"
    "net/url"
    "strings"

    "github.com/PuerkitoBio/goquery"
    "github.com/rs/zerolog/log"
    "golang.org/x/sync/errgroup"

    "github.com/hyperifyio/letterdigest/internal/fetch"
    "github.com/hyperifyio/letterdigest/internal/links"
)

// DefaultAdKeywords flag sponsored landing pages.
var DefaultAdKeywords = []string{"sponsored", "advertisement", "promoted", "partner", "paid"}

// Fetcher retrieves a page, following redirects.
type Fetcher interface {
    Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Resolution describes where a link led.
type Resolution struct {
    URL       string
    FinalURL  string
    Canonical string
    Title     string
    IsAd      bool
}

// Best returns the canonical URL when the page declares one, else the final
// URL after redirects.
func (r Resolution) Best() string {
    if r.Canonical != "" {
        return r.Canonical
    }
    return r.FinalURL
}

// Resolver follows links with a bounded number of concurrent fetches.
type Resolver struct {
    Fetcher     Fetcher
    Concurrency int
    AdKeywords  []string
}

// Resolve fetches rawURL and reads its canonical URL, title and ad markers.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Resolution, error) {
    page, err := r.Fetcher.Get(ctx, rawURL)
    if err != nil {
        return Resolution{}, err
    }
    res := Resolution{URL: rawURL, FinalURL: page.FinalURL}
    if res.FinalURL == "" {
        res.FinalURL = rawURL
    }
    if norm, err := links.Normalize(res.FinalURL); err == nil {
        res.FinalURL = norm
    }
    doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
    if err != nil {
        return res, nil
    }
    res.Canonical = canonicalURL(doc, res.FinalURL)
    res.Title = pageTitle(doc)
    desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
    res.IsAd = r.isAd(res.Title + " " + desc)
    return res, nil
}

// ResolveAll resolves every URL and returns the successes keyed by input
// URL. Failures are logged and left out.
func (r *Resolver) ResolveAll(ctx context.Context, urls []string) map[string]Resolution {
    results := make([]*Resolution, len(urls))
    g, gctx := errgroup.WithContext(ctx)
    limit := r.Concurrency
    if limit <= 0 {
        limit = 4
    }
    g.SetLimit(limit)
    for i, u := range urls {
        i, u := i, u
        g.Go(func() error {
            res, err := r.Resolve(gctx, u)
            if err != nil {
                log.Warn().Err(err).Str("url", u).Msg("crawl: resolve failed; skipping")
                return nil
            }
            results[i] = &res
            return nil
        })
    }
    _ = g.Wait()

    out := make(map[string]Resolution, len(urls))
    for i, res := range results {
        if res != nil {
            out[urls[i]] = *res
        }
    }
    return out
}

func (r *Resolver) isAd(text string) bool {
    kws := r.AdKeywords
    if kws == nil {
        kws = DefaultAdKeywords
    }
    lower := strings.ToLower(text)
    for _, k := range kws {
        if k != "" && strings.Contains(lower, strings.ToLower(k)) {
            return true
        }
    }
    return false
}

// canonicalURL reads <link rel=canonical> and og:url, resolving relative
// references against base.
func canonicalURL(doc *goquery.Document, base string) string {
    candidates := []string{}
    if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
        candidates = append(candidates, href)
    }
    if og, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok {
        candidates = append(candidates, og)
    }
    baseURL, _ := url.Parse(base)
    for _, c := range candidates {
        c = strings.TrimSpace(c)
        if c == "" {
            continue
        }
        if baseURL != nil {
            if ref, err := url.Parse(c); err == nil {
                c = baseURL.ResolveReference(ref).String()
            }
        }
        if norm, err := links.Normalize(c); err == nil {
            return norm
        }
    }
    return ""
}

func pageTitle(doc *goquery.Document) string {
    if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
        return t
    }
    if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
        return t
    }
    og, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
    return strings.TrimSpace(og)
}
