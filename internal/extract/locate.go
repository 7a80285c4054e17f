package extract

import (
    "fmt"
    "regexp"
    "strings"

    "github.com/PuerkitoBio/goquery"
    "github.com/rs/zerolog/log"
    "golang.org/x/net/html"
)

// Strategy names reported in Result.Strategy.
const (
    StrategyMarker       = "marker"
    StrategyBlockquote   = "blockquote"
    StrategyLargestDiv   = "largest-div"
    StrategyLinkDenseDiv = "link-dense-div"
    StrategyAppleSibling = "apple-sibling"
    StrategyContainer    = "container"
    StrategyDocument     = "document"
    StrategyText         = "text"
    StrategyTextForward  = "text-forward"
)

const (
    minRegionBytes     = 200
    minContentNodes    = 5
    minDocumentShare   = 0.30
    skipLeadingDivs    = 0.20
    nestedStripShare   = 0.70
    minLinkDenseAnchor = 3
    maxAncestorLevels  = 5
)

// classes matching any of these substrings are removed before region selection
var noiseClassMarkers = []string{
    "unsubscribe", "disclaimer", "preference-center",
    "advertisement", "sponsor", "promotion", "marketing-banner",
}

var htmlTagPattern = regexp.MustCompile(`(?i)<(html|head|body|div|p|table|td|tr|span|a|br|blockquote|h[1-6]|ul|ol|li|img|font|center)[\s>/]`)

// Result is the outcome of Locate. A degraded result carries the original
// input unchanged together with the reason extraction was abandoned.
type Result struct {
    Content  string
    Strategy string
    Degraded bool
    Reason   string
}

// OK reports whether a region was located without falling back.
func (r Result) OK() bool { return !r.Degraded }

func ok(content, strategy string) Result {
    return Result{Content: content, Strategy: strategy}
}

func degraded(original, reason string) Result {
    return Result{Content: original, Degraded: true, Reason: reason}
}

// LooksLikeHTML reports whether body contains recognisable HTML markup.
func LooksLikeHTML(body string) bool {
    return htmlTagPattern.MatchString(body)
}

// Locate returns the substantive region of a message body. Forwarded
// messages run the forwarded strategy waterfall; other messages pick the
// densest content container. Locate never fails: any internal error yields a
// degraded Result holding body unmodified.
func Locate(body string, forwarded bool) (res Result) {
    defer func() {
        if r := recover(); r != nil {
            res = degraded(body, fmt.Sprintf("panic: %v", r))
            log.Warn().Str("reason", res.Reason).Msg("extract: region selection failed; using original body")
        }
    }()
    if strings.TrimSpace(body) == "" {
        return ok(body, StrategyDocument)
    }
    if !LooksLikeHTML(body) {
        return locateText(body, forwarded)
    }

    doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
    if err != nil {
        res = degraded(body, "parse: "+err.Error())
        log.Warn().Err(err).Msg("extract: html parse failed; using original body")
        return res
    }
    stripStructural(doc)

    p := newPass(doc)
    if p.body == nil {
        res = degraded(body, "document has no body")
        log.Warn().Str("reason", res.Reason).Msg("extract: using original body")
        return res
    }

    var region *goquery.Selection
    strategy := StrategyDocument
    if forwarded {
        for _, s := range forwardedStrategies {
            if sel := s.find(p); sel != nil && sel.Length() > 0 {
                region, strategy = sel, s.name
                break
            }
        }
        if region != nil {
            stripNestedForwards(p, region)
        }
    } else if sel := p.densestContainer(); sel != nil {
        region, strategy = sel, StrategyContainer
    }
    if region == nil {
        region = p.bodySel()
    }
    log.Debug().Str("strategy", strategy).Bool("forwarded", forwarded).Int("doc_bytes", p.docSize).Msg("extract: region selected")

    scrubChrome(region)

    out, err := serialize(region)
    if err != nil {
        res = degraded(body, "serialize: "+err.Error())
        log.Warn().Err(err).Msg("extract: serialization failed; using original body")
        return res
    }
    return ok(out, strategy)
}

// stripStructural drops non-content elements and known marketing blocks.
func stripStructural(doc *goquery.Document) {
    doc.Find("script, style, meta, link").Remove()
    var noisy []*html.Node
    doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
        class, _ := s.Attr("class")
        if containsAny(strings.ToLower(class), noiseClassMarkers) {
            noisy = append(noisy, s.Get(0))
        }
    })
    for _, n := range noisy {
        if n.Parent != nil && !isTag(n, "body") && !isTag(n, "html") {
            n.Parent.RemoveChild(n)
        }
    }
}

// scrubChrome removes header and footer blocks left inside the region.
func scrubChrome(region *goquery.Selection) {
    var chrome []*html.Node
    region.Find("*").Each(func(_ int, s *goquery.Selection) {
        if isChrome(s.Get(0)) {
            chrome = append(chrome, s.Get(0))
        }
    })
    for _, n := range chrome {
        if n.Parent != nil {
            n.Parent.RemoveChild(n)
        }
    }
}

func isChrome(n *html.Node) bool {
    for _, a := range n.Attr {
        key := strings.ToLower(a.Key)
        if key != "class" && key != "id" && key != "role" {
            continue
        }
        val := strings.ToLower(a.Val)
        if strings.Contains(val, "footer") || strings.Contains(val, "header") {
            return true
        }
        if key == "role" && (val == "contentinfo" || val == "banner") {
            return true
        }
    }
    return false
}

// serialize renders the region. A body region is rendered without its own
// tag so the whole-document fallback yields a fragment.
func serialize(region *goquery.Selection) (string, error) {
    if isTag(region.Get(0), "body") {
        return region.Html()
    }
    return goquery.OuterHtml(region)
}

var headerLine = regexp.MustCompile(`(?i)^\s*(from|date|subject|to|cc|sent|reply-to)\s*:`)

// locateText handles plain-text bodies. Forwarded text keeps what follows
// the first strong marker and its header block.
func locateText(body string, forwarded bool) Result {
    if !forwarded {
        return ok(body, StrategyText)
    }
    idx, mlen := -1, 0
    for _, m := range forwardMarkers {
        if !m.strong {
            continue
        }
        if i := strings.Index(body, m.text); i >= 0 && (idx < 0 || i < idx) {
            idx, mlen = i, len(m.text)
        }
    }
    if idx < 0 {
        return ok(body, StrategyText)
    }
    lines := strings.Split(body[idx+mlen:], "\n")
    i := 0
    for i < len(lines) && (strings.TrimSpace(lines[i]) == "" || headerLine.MatchString(lines[i])) {
        i++
    }
    rest := strings.TrimSpace(strings.Join(lines[i:], "\n"))
    if rest == "" {
        return ok(body, StrategyText)
    }
    return ok(rest, StrategyTextForward)
}

func isTag(n *html.Node, tag string) bool {
    return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

// ContentType tells link extraction how to read a cleaned body.
type ContentType string

const (
    HTML ContentType = "html"
    Text ContentType = "text"
)

// DetectContentType classifies body as HTML or plain text.
func DetectContentType(body string) ContentType {
    if LooksLikeHTML(body) {
        return HTML
    }
    return Text
}
