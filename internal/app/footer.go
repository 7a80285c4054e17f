package app

import (
    "fmt"
    "html"
    "strings"
)

// appendFooter adds a short record of how the digest was produced.
func appendFooter(body string, meta manifestMeta) string {
    var b strings.Builder
    b.WriteString(body)
    b.WriteString("\n<hr>\n<p style=\"color:#888;font-size:small\">")
    if meta.DryRun {
        b.WriteString("Generated offline")
    } else {
        fmt.Fprintf(&b, "model=%s; llm_base_url=%s", html.EscapeString(strings.TrimSpace(meta.Model)), html.EscapeString(strings.TrimSpace(meta.LLMBaseURL)))
    }
    fmt.Fprintf(&b, "; newsletters=%d; page_cache=%t; llm_cache=%t; batch=%s</p>\n", meta.ItemCount, meta.PageCache, meta.LLMCache, meta.BatchID)
    return b.String()
}
