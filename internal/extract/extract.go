// Package extract locates the substantive region of a newsletter body and
// renders it as plain text or Markdown for downstream consumers.
package extract

import (
    "strings"

    htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
    "golang.org/x/net/html"
)

// PlainText renders an HTML fragment as readable text. Headings, paragraphs,
// list items and pre/code blocks keep their line structure while obvious
// boilerplate such as <nav>, <footer> and consent banners is skipped.
func PlainText(fragment string) string {
    node, err := html.Parse(strings.NewReader(fragment))
    if err != nil || node == nil {
        return strings.TrimSpace(fragment)
    }
    root := findFirst(node, "body")
    if root == nil {
        root = node
    }
    var b strings.Builder
    collectText(&b, root, false)
    return normalizeWhitespace(b.String())
}

// Markdown converts an HTML fragment to Markdown, falling back to PlainText
// when the converter fails or yields nothing.
func Markdown(fragment string) string {
    md, err := htmltomarkdown.ConvertString(fragment)
    if err != nil || strings.TrimSpace(md) == "" {
        return PlainText(fragment)
    }
    return strings.TrimSpace(md)
}

// nodeText is PlainText for an already parsed node.
func nodeText(n *html.Node) string {
    var b strings.Builder
    collectText(&b, n, false)
    return normalizeWhitespace(b.String())
}

func findFirst(n *html.Node, tag string) *html.Node {
    var res *html.Node
    var dfs func(*html.Node)
    dfs = func(cur *html.Node) {
        if res != nil {
            return
        }
        if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
            res = cur
            return
        }
        for c := cur.FirstChild; c != nil; c = c.NextSibling {
            dfs(c)
            if res != nil {
                return
            }
        }
    }
    dfs(n)
    return res
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
    if n.Type == html.ElementNode {
        if isBoilerplateContainer(n) {
            return
        }
        switch strings.ToLower(n.Data) {
        case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "head":
            return
        case "pre", "code":
            inPre = true
        case "br", "hr", "tr":
            b.WriteString("\n")
        case "p", "div", "blockquote", "table", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol":
            b.WriteString("\n")
        case "td", "th":
            b.WriteString(" ")
        }
    }

    if n.Type == html.TextNode {
        data := n.Data
        if !inPre {
            data = strings.ReplaceAll(data, "\t", " ")
            data = strings.ReplaceAll(data, "\r", " ")
            data = strings.ReplaceAll(data, "\u00a0", " ")
        }
        b.WriteString(data)
    }

    for c := n.FirstChild; c != nil; c = c.NextSibling {
        collectText(b, c, inPre)
    }

    if n.Type == html.ElementNode {
        switch strings.ToLower(n.Data) {
        case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "table":
            b.WriteString("\n\n")
        case "li", "div":
            b.WriteString("\n")
        case "pre", "code":
            b.WriteString("\n")
        }
    }
}

// isBoilerplateContainer reports cookie and consent banners, which some
// newsletter templates embed from their web versions.
func isBoilerplateContainer(n *html.Node) bool {
    if n == nil || n.Type != html.ElementNode {
        return false
    }
    for _, attr := range n.Attr {
        key := strings.ToLower(attr.Key)
        if key != "id" && key != "class" && !strings.HasPrefix(key, "data-") && key != "aria-label" && key != "role" {
            continue
        }
        if containsAny(strings.ToLower(attr.Val), []string{"cookie", "consent", "gdpr"}) {
            return true
        }
    }
    return false
}

func containsAny(s string, needles []string) bool {
    for _, n := range needles {
        if strings.Contains(s, n) {
            return true
        }
    }
    return false
}

func normalizeWhitespace(s string) string {
    lines := strings.Split(s, "\n")
    out := make([]string, 0, len(lines))
    for _, line := range lines {
        trimmed := strings.TrimSpace(line)
        if trimmed == "" {
            // at most one consecutive blank
            if len(out) == 0 || out[len(out)-1] == "" {
                continue
            }
            out = append(out, "")
            continue
        }
        out = append(out, collapseSpaces(trimmed))
    }
    for len(out) > 0 && out[len(out)-1] == "" {
        out = out[:len(out)-1]
    }
    return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
    var b strings.Builder
    lastSpace := false
    for _, r := range s {
        if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
            if !lastSpace {
                b.WriteByte(' ')
                lastSpace = true
            }
            continue
        }
        b.WriteRune(r)
        lastSpace = false
    }
    return b.String()
}
