package summarize

import (
    "fmt"
    "strings"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/budget"
)

const systemMessage = "You are a newsletter summarization assistant. Summarize only the provided content. Remove advertising and sponsored material. Do not invent facts or links."

const instructions = `Write one HTML digest of the newsletter content below.

Rules:
1. Cover every meaningful story; do not drop articles.
2. Organize by topic, not by source, and merge stories that repeat across sources.
3. Keep dates, figures and key findings. Stay neutral.
4. Use <h2> for topic sections, <h3> for stories, <ul>/<li> for lists and <hr> between sections.
5. After each story add <a href="URL">Read more →</a>.
6. The PRIMARY URL of a block is authoritative for its "Read more" link. Use a SECONDARY URL only for a story the primary URL does not cover.
7. Never link tracking or redirect URLs.
8. If space runs short, add an "Additional stories" section instead of omitting items.

Output only the HTML.`

const blockSeparator = "\n--------------------------------------------------\n"

// BuildPrompt renders the user message for blocks. Bodies are shortened
// proportionally when their estimated size exceeds availableTokens.
func BuildPrompt(blocks []Block, availableTokens int) string {
    total := 0
    for _, b := range blocks {
        total += len(b.Body)
    }
    factor := budget.ScalingFactor(total, availableTokens)
    if factor < 1 {
        log.Warn().Float64("factor", factor).Int("chars", total).Msg("content exceeds budget; shortening blocks")
    }

    var sb strings.Builder
    sb.WriteString(instructions)
    sb.WriteString("\n\nCONTENT TO SUMMARIZE:\n")
    for i, b := range blocks {
        sb.WriteString(blockSeparator)
        fmt.Fprintf(&sb, "BLOCK %d\n", i+1)
        fmt.Fprintf(&sb, "SOURCE: %s\n", orUnknown(b.Source))
        if b.Title != "" {
            fmt.Fprintf(&sb, "TITLE: %s\n", b.Title)
        }
        if !b.Date.IsZero() {
            fmt.Fprintf(&sb, "DATE: %s\n", b.Date.Format("2006-01-02"))
        }
        body, cut := budget.Shorten(b.Body, factor)
        if cut {
            log.Debug().Str("source", b.Source).Int("from", len(b.Body)).Int("to", len(body)).Msg("block shortened")
        }
        sb.WriteString("\nCONTENT:\n")
        sb.WriteString(strings.TrimSpace(body))
        sb.WriteString("\n\n")
        if b.PrimaryURL != "" {
            fmt.Fprintf(&sb, "PRIMARY URL (use for Read more): %s\n", b.PrimaryURL)
        }
        for j, u := range b.SecondaryURLs {
            if j >= MaxSecondaryURLs {
                break
            }
            fmt.Fprintf(&sb, "SECONDARY URL: %s\n", u)
        }
    }
    return sb.String()
}

func orUnknown(s string) string {
    if strings.TrimSpace(s) == "" {
        return "Unknown"
    }
    return s
}
