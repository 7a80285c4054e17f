package summarize

import (
    "context"
    "fmt"
    "html"
    "strings"
)

// DefaultExcerptChars bounds each block's excerpt in offline digests.
const DefaultExcerptChars = 600

// Offline renders a deterministic digest without a model. It lists every
// block with an excerpt and its links, which makes dry runs reproducible.
type Offline struct {
    ExcerptChars int
}

// Summarize implements Summarizer.
func (o Offline) Summarize(_ context.Context, blocks []Block) (string, error) {
    if len(blocks) == 0 {
        return "", ErrNoSubstantiveBody
    }
    limit := o.ExcerptChars
    if limit <= 0 {
        limit = DefaultExcerptChars
    }
    var sb strings.Builder
    for i, b := range blocks {
        if i > 0 {
            sb.WriteString("<hr>\n")
        }
        title := b.Title
        if title == "" {
            title = orUnknown(b.Source)
        }
        fmt.Fprintf(&sb, "<h3>%s</h3>\n", html.EscapeString(title))
        if b.Source != "" {
            fmt.Fprintf(&sb, "<p><em>%s</em></p>\n", html.EscapeString(b.Source))
        }
        fmt.Fprintf(&sb, "<p>%s</p>\n", html.EscapeString(excerpt(b.Body, limit)))
        if b.PrimaryURL != "" {
            fmt.Fprintf(&sb, "<p><a href=\"%s\">Read more →</a></p>\n", html.EscapeString(b.PrimaryURL))
        }
        if n := len(b.SecondaryURLs); n > 0 {
            if n > MaxSecondaryURLs {
                n = MaxSecondaryURLs
            }
            sb.WriteString("<ul>\n")
            for _, u := range b.SecondaryURLs[:n] {
                e := html.EscapeString(u)
                fmt.Fprintf(&sb, "<li><a href=\"%s\">%s</a></li>\n", e, e)
            }
            sb.WriteString("</ul>\n")
        }
    }
    return sb.String(), nil
}

// excerpt collapses whitespace and cuts at a word boundary.
func excerpt(body string, limit int) string {
    s := strings.Join(strings.Fields(body), " ")
    if len(s) <= limit {
        return s
    }
    cut := s[:limit]
    if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
        cut = cut[:i]
    }
    return strings.ToValidUTF8(cut, "") + "…"
}
