package pipeline

import (
    "fmt"
    "strings"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/letterdigest/internal/extract"
    "github.com/hyperifyio/letterdigest/internal/links"
    "github.com/hyperifyio/letterdigest/internal/mail"
    "github.com/hyperifyio/letterdigest/internal/tree"
)

// Item is the extracted content of one message.
type Item struct {
    SourceMessageID string
    Title           string
    Sender          string
    ReceivedAt      time.Time
    ContentType     extract.ContentType
    CleanedBody     string
    // Text is the plain-text rendering of CleanedBody used for fingerprints.
    // It stays empty when only the placeholder could be produced.
    Text        string
    Links       []links.Link
    Primary     string
    Secondary   []string
    IsForwarded bool
    Strategy    string
    Degraded    bool

    Excluded       bool
    ExcludedReason string

    candidates links.Candidates
}

// Placeholder is appended to bodies that yield no text.
func Placeholder(subject string) string {
    return fmt.Sprintf("[No content extracted from email: %s]", subject)
}

// Extract runs detection, region location and link prioritization for msg.
// It never fails; degraded locations keep the original body.
func Extract(msg mail.RawMessage) Item {
    forwarded := msg.IsForwarded()
    body := msg.BodyHTML
    if strings.TrimSpace(body) == "" {
        body = msg.BodyText
    }
    if strings.TrimSpace(body) == "" && msg.Payload != nil {
        body = tree.Largest(msg.Payload, tree.DefaultMaxDepth)
        if body != "" {
            log.Debug().Str("message_id", msg.MessageID).Msg("pipeline: body recovered from payload")
        }
    }

    ct := extract.DetectContentType(body)
    res := extract.Locate(body, forwarded)
    if res.Degraded {
        log.Warn().Str("message_id", msg.MessageID).Str("reason", res.Reason).Msg("pipeline: content location degraded")
    }

    it := Item{
        SourceMessageID: msg.MessageID,
        Title:           msg.Subject,
        Sender:          msg.Sender,
        ReceivedAt:      msg.ReceivedAt,
        ContentType:     ct,
        CleanedBody:     res.Content,
        IsForwarded:     forwarded,
        Strategy:        res.Strategy,
        Degraded:        res.Degraded,
    }
    if ct == extract.HTML {
        it.Text = extract.PlainText(res.Content)
    } else {
        it.Text = strings.TrimSpace(res.Content)
    }
    if strings.TrimSpace(it.Text) == "" {
        ph := Placeholder(msg.Subject)
        log.Warn().Str("message_id", msg.MessageID).Msg("pipeline: no content found")
        if strings.TrimSpace(it.CleanedBody) == "" {
            it.CleanedBody = ph
        } else {
            it.CleanedBody += "\n" + ph
        }
        // Placeholders share their wording, so they must not fingerprint.
        it.Text = ""
    }

    // The web version link usually sits in header chrome that the locator
    // removes, so it is looked up in the full body.
    it.candidates = links.Candidates{
        Canonical: links.WebVersion(links.Extract(body, ct)),
        Metadata:  msg.MetadataURL(),
        Content:   links.Extract(it.CleanedBody, ct),
    }
    it.prioritize()
    return it
}

func (it *Item) prioritize() {
    sel := links.Prioritize(it.candidates)
    it.Primary = sel.Primary
    it.Secondary = sel.Secondary
    it.Links = sel.Links
}

// crawlTarget is the first content link worth resolving: tracking links are
// included since resolving them reveals the article behind the redirect.
func (it *Item) crawlTarget() string {
    if it.candidates.Canonical != "" {
        return ""
    }
    for _, l := range it.candidates.Content {
        if links.IsRootDomain(l.URL) || links.IsUnsubscribe(l) {
            continue
        }
        return l.URL
    }
    return ""
}
