// Package links harvests URLs from cleaned newsletter content and ranks them
// into the primary and secondary sources handed to the summarizer.
package links

import (
    "fmt"
    "io"
    "net/url"
    "regexp"
    "strings"

    "github.com/PuerkitoBio/goquery"
    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/extract"
)

// Tier ranks a link for the summarizer.
type Tier string

const (
    TierPrimary   Tier = "primary"
    TierSecondary Tier = "secondary"
    TierRejected  Tier = "rejected"
)

// Link is a normalized URL found in, or supplied for, a content item.
type Link struct {
    URL    string
    Title  string
    Tier   Tier
    Reason string
}

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'\[\]{}|\\^` + "`" + `]+|\bwww\.[^\s<>"'\[\]{}|\\^` + "`" + `]+`)

// query parameters dropped during normalization
var trackingParams = []string{
    "utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id",
    "gclid", "fbclid", "mc_cid", "mc_eid",
}

// parseDocument is replaced in tests to exercise the pattern fallback.
var parseDocument = func(r io.Reader) (*goquery.Document, error) {
    return goquery.NewDocumentFromReader(r)
}

// Extract returns the links in content, normalized and de-duplicated by URL
// in order of first occurrence. HTML content is read through its anchors;
// text content, and HTML the parser cannot handle, is scanned with a URL
// pattern. An anchor whose href is unusable is salvaged from a URL spelled
// out in its text; other invalid URLs are dropped individually.
func Extract(content string, contentType extract.ContentType) []Link {
    var raw []Link
    if contentType == extract.HTML {
        var err error
        raw, err = anchors(content)
        if err != nil {
            log.Warn().Err(err).Msg("links: html parse failed; falling back to pattern scan")
            raw = scan(content)
        }
    } else {
        raw = scan(content)
    }

    seen := map[string]struct{}{}
    out := make([]Link, 0, len(raw))
    for _, l := range raw {
        u, err := Normalize(l.URL)
        if err != nil {
            salvaged := salvage(l.Title)
            if salvaged == "" {
                log.Debug().Err(err).Str("url", l.URL).Msg("links: dropping invalid url")
                continue
            }
            log.Debug().Str("url", l.URL).Str("salvaged", salvaged).Msg("links: href unusable; using url from anchor text")
            u, l.Title = salvaged, ""
        }
        if _, ok := seen[u]; ok {
            continue
        }
        seen[u] = struct{}{}
        title := l.Title
        if title == "" {
            title = u
        }
        out = append(out, Link{URL: u, Title: title})
    }
    return out
}

func anchors(content string) (out []Link, err error) {
    defer func() {
        if r := recover(); r != nil {
            err = fmt.Errorf("anchor walk: %v", r)
        }
    }()
    doc, err := parseDocument(strings.NewReader(content))
    if err != nil {
        return nil, err
    }
    doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
        href, _ := s.Attr("href")
        href = strings.TrimSpace(href)
        if href == "" {
            return
        }
        out = append(out, Link{URL: href, Title: strings.Join(strings.Fields(s.Text()), " ")})
    })
    return out, nil
}

// salvage returns the first valid URL written out in text.
func salvage(text string) string {
    for _, l := range scan(text) {
        if u, err := Normalize(l.URL); err == nil {
            return u
        }
    }
    return ""
}

func scan(content string) []Link {
    var out []Link
    for _, m := range urlPattern.FindAllString(content, -1) {
        m = strings.TrimRight(m, ".,;:!?)'\"")
        if m != "" {
            out = append(out, Link{URL: m})
        }
    }
    return out
}

// Normalize validates raw as an absolute http(s) URL and returns its
// canonical form: bare www. hosts get https, the host is lower-cased, the
// fragment and tracking parameters are removed.
func Normalize(raw string) (string, error) {
    raw = strings.TrimSpace(raw)
    if strings.HasPrefix(strings.ToLower(raw), "www.") {
        raw = "https://" + raw
    }
    u, err := url.Parse(raw)
    if err != nil {
        return "", fmt.Errorf("parse url: %w", err)
    }
    u.Scheme = strings.ToLower(u.Scheme)
    if u.Scheme != "http" && u.Scheme != "https" {
        return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
    }
    if u.Hostname() == "" {
        return "", fmt.Errorf("missing host in %q", raw)
    }
    u.Fragment = ""
    u.RawFragment = ""
    u.Host = strings.ToLower(u.Host)
    if u.RawQuery != "" {
        q := u.Query()
        removed := false
        for _, p := range trackingParams {
            if q.Has(p) {
                q.Del(p)
                removed = true
            }
        }
        if removed {
            u.RawQuery = q.Encode()
        }
    }
    return u.String(), nil
}

// IsRootDomain reports whether raw has no path beyond "/". Such URLs are
// too generic to serve as a primary source.
func IsRootDomain(raw string) bool {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil {
        return false
    }
    return u.Path == "" || u.Path == "/"
}
